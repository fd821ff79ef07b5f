package analytics

import "sort"

// The three emotion categories are fixed, disjoint emoji sets.
var (
	funnyEmoji   = []string{"\U0001F602", "\U0001F923", "\U0001F606", "\U0001F639", "\U0001F480"}
	shockedEmoji = []string{"\U0001F62E", "\U0001F631", "\U0001F92F", "\U0001F632", "\U0001F633"}
	lovedEmoji   = []string{"❤️", "\U0001F60D", "\U0001F970", "\U0001F495", "❣️", "\U0001F63B"}
)

// smoothingWeight is the pseudo-count of messages blended into every user's
// rate. It keeps a user with three messages and one lucky reaction from
// outranking consistently funny heavy senders.
const smoothingWeight = 25.0

// rankEmotion scores every user with at least one sent message against one
// emoji category. rate is the user's exact reacts-per-message ratio; score is
// the Bayesian-average blend of that rate with the population mean. The
// result is sorted descending by score, ties broken by id for determinism.
func rankEmotion(messagesSent, reactsReceived map[string]int, resolve func(string) string) []EmotionScore {
	if len(messagesSent) == 0 {
		return []EmotionScore{}
	}

	var totalMessages, totalReacts int
	for user, sent := range messagesSent {
		totalMessages += sent
		totalReacts += reactsReceived[user]
	}
	populationRate := float64(totalReacts) / float64(totalMessages)

	scores := make([]EmotionScore, 0, len(messagesSent))
	for user, sent := range messagesSent {
		reacts := reactsReceived[user]
		rate := float64(reacts) / float64(sent)
		score := (float64(reacts) + smoothingWeight*populationRate) /
			(float64(sent) + smoothingWeight)
		scores = append(scores, EmotionScore{
			ID:           user,
			Name:         resolve(user),
			TotalReacts:  reacts,
			MessagesSent: sent,
			Rate:         rate,
			Score:        score,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	return scores
}

package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ahstewart/signal-snapshot/internal/identity"
	"github.com/ahstewart/signal-snapshot/internal/progress"
)

const (
	topConversationCount = 5
	topEmojiCount        = 10
	perAuthorEmojiCount  = 3
	topUserCount         = 10
)

// Aggregator runs the aggregation pipeline. It holds no per-call state; every
// Aggregate call recomputes its Report from scratch against the immutable
// snapshot, so re-running after a filter change never observes stale data.
type Aggregator struct {
	logger *logrus.Logger
	clock  func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{logger: logger, clock: time.Now}
}

// Aggregate computes every derived view over the snapshot, optionally
// restricted to the given conversation ids. Any single query failure fails
// the whole call with ErrAggregationFailed; no partial Report escapes.
func (a *Aggregator) Aggregate(ctx context.Context, db *sqlx.DB, filter []string, onProgress progress.Func) (*Report, error) {
	onProgress = progress.Monotonic(onProgress)
	started := a.clock()

	report, err := a.aggregate(ctx, db, filter, onProgress)
	if err != nil {
		progress.Report(onProgress, 100, "aggregation failed")
		return nil, fmt.Errorf("%w: %v", ErrAggregationFailed, err)
	}

	a.logger.WithFields(logrus.Fields{
		"conversations": report.KPIs.TotalConversations,
		"messages":      report.KPIs.TotalMessages,
		"filtered":      len(filter) > 0,
		"duration":      a.clock().Sub(started).String(),
	}).Info("Aggregation complete")
	progress.Report(onProgress, 100, "aggregation complete")
	return report, nil
}

func (a *Aggregator) aggregate(ctx context.Context, db *sqlx.DB, filter []string, onProgress progress.Func) (*Report, error) {
	s := &scope{db: db, ids: filter}
	now := a.clock()
	report := &Report{GeneratedAt: now}

	names, err := identity.BuildNameIndex(ctx, db)
	if err != nil {
		return nil, err
	}
	resolve := func(id string) string { return identity.Lookup(names, id) }
	progress.Report(onProgress, 10, "resolved identities")

	// Entity catalog.
	convs, err := s.conversations(ctx)
	if err != nil {
		return nil, err
	}
	perConv, err := s.messageCountsByConversation(ctx)
	if err != nil {
		return nil, err
	}
	report.Conversations = buildCatalog(convs, perConv, resolve, now)
	progress.Report(onProgress, 25, "built conversation catalog")

	// Time series and type distribution.
	days, err := s.messagesByDay(ctx)
	if err != nil {
		return nil, err
	}
	report.MessagesByDay = make(map[string]int, len(days))
	for _, d := range days {
		report.MessagesByDay[d.Day] = d.Count
	}
	hours, err := s.messagesByHour(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hours {
		if h.Hour >= 0 && h.Hour < 24 {
			report.MessagesByHour[h.Hour] = h.Count
		}
	}
	types, err := s.messageTypes(ctx)
	if err != nil {
		return nil, err
	}
	report.MessageTypes = make(map[string]int, len(types))
	for _, tc := range types {
		report.MessageTypes[tc.Kind] = tc.Count
	}
	report.PeakHours = peakHours(report.MessagesByHour)
	progress.Report(onProgress, 45, "computed time series")

	// KPIs.
	total, err := s.totalMessages(ctx)
	if err != nil {
		return nil, err
	}
	activeDays, err := s.distinctActiveDays(ctx)
	if err != nil {
		return nil, err
	}
	report.KPIs = KPIs{
		TotalMessages:      total,
		TotalConversations: len(convs),
		AvgMessagesPerDay:  float64(total) / math.Max(1, float64(activeDays)),
	}

	// Top conversations by volume.
	sorted := make([]ConversationSummary, len(report.Conversations))
	copy(sorted, report.Conversations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MessageCount > sorted[j].MessageCount
	})
	for i := 0; i < len(sorted) && i < topConversationCount; i++ {
		report.TopConversations = append(report.TopConversations, RankedEntity{
			ID:    sorted[i].ID,
			Name:  sorted[i].Name,
			Count: sorted[i].MessageCount,
		})
	}
	progress.Report(onProgress, 55, "computed KPIs")

	// Reaction statistics.
	if err := a.addReactionStats(ctx, s, report, resolve); err != nil {
		return nil, err
	}
	progress.Report(onProgress, 70, "computed reaction statistics")

	// Awards.
	if err := a.addAwards(ctx, s, report, resolve); err != nil {
		return nil, err
	}
	progress.Report(onProgress, 85, "computed awards")

	// Emotion rankings and raw-volume top users.
	if err := a.addEmotionRankings(ctx, s, report, resolve); err != nil {
		return nil, err
	}
	if err := a.addTopUsers(ctx, s, report, resolve); err != nil {
		return nil, err
	}
	progress.Report(onProgress, 95, "computed rankings")

	return report, nil
}

// buildCatalog annotates every conversation with its resolved name, member
// count, message count, and average messages per day since its activity
// window opened.
func buildCatalog(convs []conversationRow, perConv map[string]int, resolve func(string) string, now time.Time) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := ConversationSummary{
			ID:           c.ID,
			Kind:         c.Kind,
			MessageCount: perConv[c.ID],
		}

		if c.Kind == "group" {
			if c.Name.Valid && c.Name.String != "" {
				summary.Name = c.Name.String
			} else {
				summary.Name = c.ID
			}
			if c.Members.Valid {
				summary.MemberCount = len(strings.Fields(c.Members.String))
			}
		} else {
			summary.Name = resolve(c.ID)
		}

		days := 1.0
		if c.ActiveAt.Valid && c.ActiveAt.Int64 > 0 {
			start := time.UnixMilli(c.ActiveAt.Int64)
			days = math.Max(1, math.Round(now.Sub(start).Hours()/24))
		}
		summary.AvgPerDay = float64(summary.MessageCount) / days

		out = append(out, summary)
	}
	return out
}

// peakHours returns the hours carrying the maximum message count, in order.
func peakHours(byHour [24]int) []int {
	max := 0
	for _, c := range byHour {
		if c > max {
			max = c
		}
	}
	peaks := []int{}
	if max == 0 {
		return peaks
	}
	for h, c := range byHour {
		if c == max {
			peaks = append(peaks, h)
		}
	}
	return peaks
}

func (a *Aggregator) addReactionStats(ctx context.Context, s *scope, report *Report, resolve func(string) string) error {
	total, err := s.totalReactions(ctx)
	if err != nil {
		return err
	}
	report.Reactions.Total = total

	top, err := s.topEmoji(ctx, topEmojiCount)
	if err != nil {
		return err
	}
	report.Reactions.TopEmoji = make([]EmojiCount, 0, len(top))
	for _, e := range top {
		report.Reactions.TopEmoji = append(report.Reactions.TopEmoji, EmojiCount{Emoji: e.Emoji, Count: e.Count})
	}

	byAuthor, err := s.emojiByAuthor(ctx)
	if err != nil {
		return err
	}
	report.Reactions.ByAuthor = make(map[string][]EmojiCount)
	for _, row := range byAuthor {
		name := resolve(row.Author)
		if len(report.Reactions.ByAuthor[name]) >= perAuthorEmojiCount {
			continue
		}
		report.Reactions.ByAuthor[name] = append(report.Reactions.ByAuthor[name],
			EmojiCount{Emoji: row.Emoji, Count: row.Count})
	}
	return nil
}

func (a *Aggregator) addAwards(ctx context.Context, s *scope, report *Report, resolve func(string) string) error {
	award := func(template, filterColumn string) (Award, error) {
		rows, err := s.topCounters(ctx, template, filterColumn, 1)
		if err != nil {
			return Award{}, err
		}
		if len(rows) == 0 {
			return Award{}, nil
		}
		return Award{WinnerID: rows[0].ID, WinnerName: resolve(rows[0].ID), Count: rows[0].Count}, nil
	}

	var err error
	if report.Awards.MostMessagesSent, err = award(queryMessagesSent, "conversationId"); err != nil {
		return err
	}
	if report.Awards.MostReactionsGiven, err = award(queryReactionsGiven, "conversationId"); err != nil {
		return err
	}
	if report.Awards.MostReactionsReceived, err = award(queryReactionsReceived, "conversationId"); err != nil {
		return err
	}
	if report.Awards.MostMentioned, err = award(queryMostMentioned, "m.conversationId"); err != nil {
		return err
	}
	if report.Awards.MostMentionsGiven, err = award(queryMentionsGiven, "m.conversationId"); err != nil {
		return err
	}
	if report.Awards.MostMediaMessages, err = award(queryMediaMessages, "conversationId"); err != nil {
		return err
	}
	return nil
}

func (a *Aggregator) addEmotionRankings(ctx context.Context, s *scope, report *Report, resolve func(string) string) error {
	sent, err := s.messagesSentPerUser(ctx)
	if err != nil {
		return err
	}

	categories := []struct {
		emoji []string
		dst   *[]EmotionScore
	}{
		{funnyEmoji, &report.Emotions.Funniest},
		{shockedEmoji, &report.Emotions.MostShocking},
		{lovedEmoji, &report.Emotions.MostLoved},
	}
	for _, cat := range categories {
		reacts, err := s.categoryReactsReceived(ctx, cat.emoji)
		if err != nil {
			return err
		}
		*cat.dst = rankEmotion(sent, reacts, resolve)
	}
	return nil
}

func (a *Aggregator) addTopUsers(ctx context.Context, s *scope, report *Report, resolve func(string) string) error {
	senders, err := s.topCounters(ctx, queryMessagesSent, "conversationId", topUserCount)
	if err != nil {
		return err
	}
	for _, r := range senders {
		report.TopSenders = append(report.TopSenders, RankedEntity{ID: r.ID, Name: resolve(r.ID), Count: r.Count})
	}

	reactors, err := s.topCounters(ctx, queryReactionsGiven, "conversationId", topUserCount)
	if err != nil {
		return err
	}
	for _, r := range reactors {
		report.TopReactors = append(report.TopReactors, RankedEntity{ID: r.ID, Name: resolve(r.ID), Count: r.Count})
	}
	return nil
}

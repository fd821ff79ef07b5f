// Package analytics computes derived views over an opened snapshot.
package analytics

import (
	"errors"
	"time"
)

// ErrAggregationFailed wraps any query failure inside an aggregation call.
// The call fails atomically; no partial Report is ever returned.
var ErrAggregationFailed = errors.New("aggregation failed")

// Report is the composite result of one aggregation call. It is built once
// and returned atomically; fields are never partially updated.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	KPIs KPIs `json:"kpis"`

	// Time series over in-filter messages.
	MessagesByDay  map[string]int `json:"messages_by_day"`
	MessagesByHour [24]int        `json:"messages_by_hour"`

	// Distribution of message types and the set of peak activity hours.
	MessageTypes map[string]int `json:"message_types"`
	PeakHours    []int          `json:"peak_hours"`

	Conversations    []ConversationSummary `json:"conversations"`
	TopConversations []RankedEntity        `json:"top_conversations"`

	Reactions ReactionStats `json:"reactions"`
	Awards    Awards        `json:"awards"`
	Emotions  EmotionBoard  `json:"emotions"`

	TopSenders  []RankedEntity `json:"top_senders"`
	TopReactors []RankedEntity `json:"top_reactors"`
}

// KPIs are the headline figures.
type KPIs struct {
	TotalMessages      int     `json:"total_messages"`
	TotalConversations int     `json:"total_conversations"`
	AvgMessagesPerDay  float64 `json:"avg_messages_per_day"`
}

// ConversationSummary is one catalog entry.
type ConversationSummary struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Kind         string  `json:"kind"`
	MemberCount  int     `json:"member_count,omitempty"`
	MessageCount int     `json:"message_count"`
	AvgPerDay    float64 `json:"avg_per_day"`
}

// RankedEntity is a display-name-labeled entry in a top-N list.
type RankedEntity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// EmojiCount is one entry in an emoji frequency table.
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// ReactionStats covers global and per-author emoji usage.
type ReactionStats struct {
	Total    int                     `json:"total"`
	TopEmoji []EmojiCount            `json:"top_emoji"`
	ByAuthor map[string][]EmojiCount `json:"by_author"`
}

// Award is a single-winner "who did X the most" aggregate. A zero Award
// (empty winner, count 0) means no rows matched.
type Award struct {
	WinnerID   string `json:"winner_id"`
	WinnerName string `json:"winner_name"`
	Count      int    `json:"count"`
}

// Awards holds the six independent award winners.
type Awards struct {
	MostMessagesSent      Award `json:"most_messages_sent"`
	MostReactionsGiven    Award `json:"most_reactions_given"`
	MostReactionsReceived Award `json:"most_reactions_received"`
	MostMentioned         Award `json:"most_mentioned"`
	MostMentionsGiven     Award `json:"most_mentions_given"`
	MostMediaMessages     Award `json:"most_media_messages"`
}

// EmotionScore is one user's entry in an emotion ranking.
type EmotionScore struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	TotalReacts  int     `json:"total_reacts"`
	MessagesSent int     `json:"messages_sent"`
	Rate         float64 `json:"rate"`
	Score        float64 `json:"score"`
}

// EmotionBoard holds the three emotion-weighted user rankings, each sorted
// descending by score.
type EmotionBoard struct {
	Funniest     []EmotionScore `json:"funniest"`
	MostShocking []EmotionScore `json:"most_shocking"`
	MostLoved    []EmotionScore `json:"most_loved"`
}

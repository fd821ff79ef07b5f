package analytics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// scope binds every query to an optional conversation-id subset. All filter
// values are passed through parameter binding; no identifier is ever spliced
// into query text.
type scope struct {
	db  *sqlx.DB
	ids []string
}

// convFilter renders a WHERE fragment restricting column to the scope's
// conversation ids, with the ids as bound arguments. An unfiltered scope
// yields a no-op fragment.
func (s *scope) convFilter(column string) (string, []interface{}, error) {
	if len(s.ids) == 0 {
		return "1=1", nil, nil
	}
	frag, args, err := sqlx.In(column+" IN (?)", s.ids)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand conversation filter: %w", err)
	}
	return frag, args, nil
}

// idCountRow is the positional schema shared by every count-per-entity query.
type idCountRow struct {
	ID    string `db:"id"`
	Count int    `db:"c"`
}

// conversationRow is the catalog query schema.
type conversationRow struct {
	ID              string         `db:"id"`
	Kind            string         `db:"type"`
	Name            sql.NullString `db:"name"`
	ProfileFullName sql.NullString `db:"profileFullName"`
	ProfileName     sql.NullString `db:"profileName"`
	E164            sql.NullString `db:"e164"`
	Members         sql.NullString `db:"members"`
	ActiveAt        sql.NullInt64  `db:"active_at"`
}

type dayCountRow struct {
	Day   string `db:"day"`
	Count int    `db:"c"`
}

type hourCountRow struct {
	Hour  int `db:"hour"`
	Count int `db:"c"`
}

type typeCountRow struct {
	Kind  string `db:"type"`
	Count int    `db:"c"`
}

type emojiCountRow struct {
	Emoji string `db:"emoji"`
	Count int    `db:"c"`
}

type authorEmojiRow struct {
	Author string `db:"author"`
	Emoji  string `db:"emoji"`
	Count  int    `db:"c"`
}

func (s *scope) conversations(ctx context.Context) ([]conversationRow, error) {
	frag, args, err := s.convFilter("id")
	if err != nil {
		return nil, err
	}
	rows := []conversationRow{}
	q := fmt.Sprintf(`
		SELECT id, type, name, profileFullName, profileName, e164, members, active_at
		FROM conversations
		WHERE %s
		ORDER BY id`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return rows, nil
}

func (s *scope) messageCountsByConversation(ctx context.Context) (map[string]int, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []idCountRow{}
	q := fmt.Sprintf(`
		SELECT conversationId AS id, COUNT(*) AS c
		FROM messages
		WHERE %s
		GROUP BY conversationId`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to count messages per conversation: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}

func (s *scope) messagesByDay(ctx context.Context) ([]dayCountRow, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []dayCountRow{}
	q := fmt.Sprintf(`
		SELECT strftime('%%Y-%%m-%%d', sent_at / 1000, 'unixepoch') AS day, COUNT(*) AS c
		FROM messages
		WHERE %s
		GROUP BY day
		ORDER BY day`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to count messages by day: %w", err)
	}
	return rows, nil
}

func (s *scope) messagesByHour(ctx context.Context) ([]hourCountRow, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []hourCountRow{}
	q := fmt.Sprintf(`
		SELECT CAST(strftime('%%H', sent_at / 1000, 'unixepoch') AS INTEGER) AS hour, COUNT(*) AS c
		FROM messages
		WHERE %s
		GROUP BY hour
		ORDER BY hour`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to count messages by hour: %w", err)
	}
	return rows, nil
}

func (s *scope) messageTypes(ctx context.Context) ([]typeCountRow, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []typeCountRow{}
	q := fmt.Sprintf(`
		SELECT type, COUNT(*) AS c
		FROM messages
		WHERE %s AND type IS NOT NULL
		GROUP BY type`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to count message types: %w", err)
	}
	return rows, nil
}

func (s *scope) totalMessages(ctx context.Context) (int, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM messages WHERE %s`, frag)
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *scope) distinctActiveDays(ctx context.Context) (int, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`
		SELECT COUNT(DISTINCT date(sent_at / 1000, 'unixepoch'))
		FROM messages
		WHERE %s`, frag)
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("failed to count active days: %w", err)
	}
	return n, nil
}

func (s *scope) totalReactions(ctx context.Context) (int, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM reactions WHERE %s`, frag)
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("failed to count reactions: %w", err)
	}
	return n, nil
}

func (s *scope) topEmoji(ctx context.Context, limit int) ([]emojiCountRow, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []emojiCountRow{}
	q := fmt.Sprintf(`
		SELECT emoji, COUNT(*) AS c
		FROM reactions
		WHERE %s
		GROUP BY emoji
		ORDER BY c DESC, emoji
		LIMIT ?`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, append(args, limit)...); err != nil {
		return nil, fmt.Errorf("failed to rank emoji: %w", err)
	}
	return rows, nil
}

func (s *scope) emojiByAuthor(ctx context.Context) ([]authorEmojiRow, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []authorEmojiRow{}
	q := fmt.Sprintf(`
		SELECT targetAuthorAci AS author, emoji, COUNT(*) AS c
		FROM reactions
		WHERE %s AND targetAuthorAci != ''
		GROUP BY targetAuthorAci, emoji
		ORDER BY author, c DESC, emoji`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to rank emoji per author: %w", err)
	}
	return rows, nil
}

// topCounters runs one of the ranked count-per-entity queries. template must
// contain a single %s for the conversation-filter fragment, select an `id`
// and a `c` column, and order by c descending.
func (s *scope) topCounters(ctx context.Context, template, filterColumn string, limit int) ([]idCountRow, error) {
	frag, args, err := s.convFilter(filterColumn)
	if err != nil {
		return nil, err
	}
	rows := []idCountRow{}
	q := fmt.Sprintf(template, frag)
	if err := s.db.SelectContext(ctx, &rows, q, append(args, limit)...); err != nil {
		return nil, fmt.Errorf("failed to rank entities: %w", err)
	}
	return rows, nil
}

const (
	queryMessagesSent = `
		SELECT sourceServiceId AS id, COUNT(*) AS c
		FROM messages
		WHERE %s AND sourceServiceId != ''
		GROUP BY sourceServiceId
		ORDER BY c DESC
		LIMIT ?`

	queryReactionsGiven = `
		SELECT fromId AS id, COUNT(*) AS c
		FROM reactions
		WHERE %s AND fromId != ''
		GROUP BY fromId
		ORDER BY c DESC
		LIMIT ?`

	queryReactionsReceived = `
		SELECT targetAuthorAci AS id, COUNT(*) AS c
		FROM reactions
		WHERE %s AND targetAuthorAci != ''
		GROUP BY targetAuthorAci
		ORDER BY c DESC
		LIMIT ?`

	queryMostMentioned = `
		SELECT mn.mentionAci AS id, COUNT(*) AS c
		FROM mentions mn
		JOIN messages m ON m.id = mn.messageId
		WHERE %s AND mn.mentionAci != ''
		GROUP BY mn.mentionAci
		ORDER BY c DESC
		LIMIT ?`

	queryMentionsGiven = `
		SELECT m.sourceServiceId AS id, COUNT(*) AS c
		FROM mentions mn
		JOIN messages m ON m.id = mn.messageId
		WHERE %s AND m.sourceServiceId != ''
		GROUP BY m.sourceServiceId
		ORDER BY c DESC
		LIMIT ?`

	queryMediaMessages = `
		SELECT sourceServiceId AS id, COUNT(*) AS c
		FROM messages
		WHERE %s AND sourceServiceId != '' AND hasVisualMediaAttachments > 0
		GROUP BY sourceServiceId
		ORDER BY c DESC
		LIMIT ?`
)

// categoryReactsReceived counts, per receiving user, the in-filter reactions
// whose emoji falls in the given category. Only the most recent reaction per
// (reactor, message) pair counts, so a user who reacted twice or changed
// their emoji contributes once.
func (s *scope) categoryReactsReceived(ctx context.Context, emoji []string) (map[string]int, error) {
	frag, args, err := s.convFilter("r.conversationId")
	if err != nil {
		return nil, err
	}
	inFrag, inArgs, err := sqlx.In("latest.emoji IN (?)", emoji)
	if err != nil {
		return nil, fmt.Errorf("failed to expand emoji set: %w", err)
	}
	rows := []idCountRow{}
	q := fmt.Sprintf(`
		SELECT latest.targetAuthorAci AS id, COUNT(*) AS c
		FROM (
			SELECT r.targetAuthorAci, r.emoji,
			       ROW_NUMBER() OVER (
			           PARTITION BY r.fromId, r.messageId
			           ORDER BY r.sent_at DESC, r.rowid DESC
			       ) AS rn
			FROM reactions r
			WHERE %s AND r.targetAuthorAci != ''
		) latest
		WHERE latest.rn = 1 AND %s
		GROUP BY latest.targetAuthorAci`, frag, inFrag)
	if err := s.db.SelectContext(ctx, &rows, q, append(args, inArgs...)...); err != nil {
		return nil, fmt.Errorf("failed to count category reactions: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}

// messagesSentPerUser returns the full per-sender message counts, used by the
// emotion rankings.
func (s *scope) messagesSentPerUser(ctx context.Context) (map[string]int, error) {
	frag, args, err := s.convFilter("conversationId")
	if err != nil {
		return nil, err
	}
	rows := []idCountRow{}
	q := fmt.Sprintf(`
		SELECT sourceServiceId AS id, COUNT(*) AS c
		FROM messages
		WHERE %s AND sourceServiceId != ''
		GROUP BY sourceServiceId`, frag)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to count messages per user: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}

// Package identity resolves internal entity identifiers to display names.
package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// entityRow is the fixed positional schema of the name-resolution query.
type entityRow struct {
	ID              string         `db:"id"`
	ServiceID       sql.NullString `db:"serviceId"`
	ProfileFullName sql.NullString `db:"profileFullName"`
	ProfileName     sql.NullString `db:"profileName"`
	E164            sql.NullString `db:"e164"`
}

// displayName applies the resolution precedence: profile full name, else
// profile short name, else phone/service identifier. An empty result means
// the entity has no resolvable name.
func (r entityRow) displayName() string {
	switch {
	case r.ProfileFullName.Valid && r.ProfileFullName.String != "":
		return r.ProfileFullName.String
	case r.ProfileName.Valid && r.ProfileName.String != "":
		return r.ProfileName.String
	case r.E164.Valid && r.E164.String != "":
		return r.E164.String
	default:
		return ""
	}
}

// BuildNameIndex maps every private conversation's primary id and service id
// to its resolved display name. Entities with no resolvable name are omitted;
// consumers fall back to the raw id when a lookup misses. The function is a
// pure read of the conversation rows and is idempotent.
func BuildNameIndex(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	rows := []entityRow{}
	err := db.SelectContext(ctx, &rows, `
		SELECT id, serviceId, profileFullName, profileName, e164
		FROM conversations
		WHERE type = 'private'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query private conversations: %w", err)
	}

	index := make(map[string]string, len(rows)*2)
	for _, r := range rows {
		name := r.displayName()
		if name == "" {
			continue
		}
		index[r.ID] = name
		if r.ServiceID.Valid && r.ServiceID.String != "" {
			index[r.ServiceID.String] = name
		}
	}
	return index, nil
}

// Lookup returns the resolved name for id, falling back to the raw id itself.
func Lookup(index map[string]string, id string) string {
	if name, ok := index[id]; ok {
		return name
	}
	return id
}

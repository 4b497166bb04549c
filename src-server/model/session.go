package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Session is one row in the `sessions` table. The `data` column is an
// opaque JSON blob owned by the caller; this package never looks inside
// it. `expires` is a text timestamp and is NOT enforced on read, an
// expired row still comes back as valid.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID      string `bun:"id,pk,notnull,unique"` // required
	Data    string `bun:"data,notnull"`         // required
	Expires string `bun:"expires"`
}

// CreateSession inserts a new session row and returns its generated ID.
func CreateSession(ctx context.Context, db bun.IDB, data string, expires string) (string, error) {
	id := uuid.NewString()
	if _, err := db.
		NewInsert().
		Model(&Session{
			ID:      id,
			Data:    data,
			Expires: expires,
		}).
		Exec(ctx); err != nil {
		return "", fmt.Errorf("CreateSession: can't insert session: %w", err)
	}
	return id, nil
}

// GetSession returns (nil, nil) when no session with that ID exists.
func GetSession(ctx context.Context, db bun.IDB, id string) (*Session, error) {
	sessionModel := new(Session)
	if err := db.
		NewSelect().
		Model(sessionModel).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetSession: can't scan session: %w", err)
	}
	return sessionModel, nil
}

func UpdateSession(ctx context.Context, db bun.IDB, id string, data string, expires string) error {
	if _, err := db.
		NewUpdate().
		Model((*Session)(nil)).
		Set("data = ?", data).
		Set("expires = ?", expires).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("UpdateSession: can't update session: %w", err)
	}
	return nil
}

// DeleteSession is idempotent, deleting an absent row is not an error.
func DeleteSession(ctx context.Context, db bun.IDB, id string) error {
	if _, err := db.
		NewDelete().
		Model((*Session)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("DeleteSession: can't delete session: %w", err)
	}
	return nil
}

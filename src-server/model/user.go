package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string `bun:"id,pk,notnull,unique"`
	DiscordID string `bun:"discord_id,notnull,unique"`
	Username  string `bun:"username,notnull"`
}

// GetUser returns (nil, nil) when no user with that ID exists.
func GetUser(ctx context.Context, db bun.IDB, id string) (*User, error) {
	userModel := new(User)
	if err := db.
		NewSelect().
		Model(userModel).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetUser: can't scan user: %w", err)
	}
	return userModel, nil
}

// FindOrCreateUser looks a user up by their Discord ID, creating one when
// none exists yet. Logins through the same Discord account always resolve
// to the same local user.
func FindOrCreateUser(ctx context.Context, db bun.IDB, discordID string, username string) (*User, error) {
	if discordID == "" {
		return nil, fmt.Errorf("FindOrCreateUser: discord id is empty")
	}

	userModel := new(User)
	err := db.
		NewSelect().
		Model(userModel).
		Where("discord_id = ?", discordID).
		Scan(ctx)
	switch {
	case err == nil:
		return userModel, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("FindOrCreateUser: can't scan user: %w", err)
	}

	userModel = &User{
		ID:        uuid.NewString(),
		DiscordID: discordID,
		Username:  username,
	}
	if _, err := db.
		NewInsert().
		Model(userModel).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("FindOrCreateUser: can't insert user: %w", err)
	}
	return userModel, nil
}

package model

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type Guild struct {
	bun.BaseModel `bun:"table:guilds"`

	ID   string `bun:"id,pk,notnull,unique"`
	Name string `bun:"name"`
}

// Register inserts the guild if it isn't known yet; registering an
// already-known guild is a no-op.
func (g *Guild) Register(ctx context.Context, db bun.IDB) error {
	if g.ID == "" {
		return fmt.Errorf("guild id is empty")
	}

	_, err := db.
		NewInsert().
		Model(g).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("Guild.Register: %w", err)
	}
	return nil
}

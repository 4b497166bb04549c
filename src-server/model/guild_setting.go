package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

type GuildSettingKey string

const (
	// role allowed to run moderation commands
	GUILD_SETTING_MODERATOR_ROLE = GuildSettingKey("moderator_role_id")
	// channel moderation actions get logged to
	GUILD_SETTING_MOD_LOG_CHANNEL = GuildSettingKey("mod_log_channel_id")
)

type GuildSetting struct {
	bun.BaseModel `bun:"table:guild_settings"`

	GuildID string          `bun:"guild_id,pk,notnull"`         // required
	Key     GuildSettingKey `bun:"key,pk,notnull,type:varchar"` // required
	Value   string          `bun:"value,notnull"`               // required
}

// SetGuildSetting writes one setting for one guild, overwriting any
// previous value.
func SetGuildSetting(ctx context.Context, db bun.IDB, guildID string, key GuildSettingKey, value string) error {
	if guildID == "" {
		return fmt.Errorf("SetGuildSetting: guild id is empty")
	}

	if _, err := db.
		NewInsert().
		Model(&GuildSetting{
			GuildID: guildID,
			Key:     key,
			Value:   value,
		}).
		On("CONFLICT (guild_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx); err != nil {
		return fmt.Errorf("SetGuildSetting: can't upsert setting: %w", err)
	}
	return nil
}

// GetGuildSetting returns ("", nil) when the setting was never written.
func GetGuildSetting(ctx context.Context, db bun.IDB, guildID string, key GuildSettingKey) (string, error) {
	settingModel := new(GuildSetting)
	if err := db.
		NewSelect().
		Model(settingModel).
		Where("guild_id = ?", guildID).
		Where("key = ?", key).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("GetGuildSetting: can't scan setting: %w", err)
	}
	return settingModel.Value, nil
}

package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modweb/src-server/model"
	"modweb/src-server/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/uptrace/bun"
)

func Setup(as *utils.AppState) {
	id := "setup"
	as.AddAppCmdHandler(id, setupHandler(as))
	as.AddAppCmdInfo(id, &discordgo.ApplicationCommand{
		Name:        id,
		Description: "Configure the moderator role and mod-log channel for this server.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        "role",
				Description: "The role allowed to use moderation commands.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "The channel moderation actions are logged to.",
				Required:    true,
			},
		},
	})
}

func setupHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		interaction := i.Interaction

		// respond to the original request
		startTimer := time.Now()
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		}); err != nil {
			slog.Warn("setupHandler: can't send defer message", "error", err)
			return nil
		}
		as.MetricChans.DiscordSendMessage <- float64(time.Since(startTimer).Microseconds())

		// whatever goes wrong below, the invoker gets told about it in
		// the reply instead of silence
		startTimer = time.Now()
		content, embeds, err := applySetup(context.Background(), as.BunDB, i)
		if err != nil {
			content = err.Error()
			embeds = nil
		} else {
			as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())
		}

		if _, editErr := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
			Content: &content,
			Embeds:  &embeds,
		}); editErr != nil {
			slog.Warn("setupHandler: can't edit reply", "error", editErr)
		}

		if err != nil {
			return fmt.Errorf("setupHandler: %w", err)
		}
		return nil
	}
}

// applySetup validates the interaction, registers the guild if needed
// and overwrites both settings. The returned string is the reply text.
func applySetup(ctx context.Context, db bun.IDB, i *discordgo.InteractionCreate) (string, []*discordgo.MessageEmbed, error) {
	if i.GuildID == "" {
		return "", nil, fmt.Errorf("this command can only be used in a server")
	}

	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range i.ApplicationCommandData().Options {
		options[opt.Name] = opt
	}
	roleID := func() string {
		if opt, ok := options["role"]; ok {
			return strings.TrimSpace(opt.StringValue())
		}
		return ""
	}()
	if roleID == "" {
		return "", nil, fmt.Errorf("missing role selection")
	}
	channelID := func() string {
		if opt, ok := options["channel"]; ok {
			return strings.TrimSpace(opt.StringValue())
		}
		return ""
	}()
	if channelID == "" {
		return "", nil, fmt.Errorf("missing channel selection")
	}

	guildModel := model.Guild{ID: i.GuildID}
	if err := guildModel.Register(ctx, db); err != nil {
		return "", nil, fmt.Errorf("can't register guild: %w", err)
	}
	if err := model.SetGuildSetting(ctx, db, i.GuildID, model.GUILD_SETTING_MODERATOR_ROLE, roleID); err != nil {
		return "", nil, fmt.Errorf("can't save moderator role: %w", err)
	}
	if err := model.SetGuildSetting(ctx, db, i.GuildID, model.GUILD_SETTING_MOD_LOG_CHANNEL, channelID); err != nil {
		return "", nil, fmt.Errorf("can't save mod-log channel: %w", err)
	}

	embeds := []*discordgo.MessageEmbed{
		{
			Title: "Moderation settings",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:   utils.SettingName(string(model.GUILD_SETTING_MODERATOR_ROLE)),
					Value:  fmt.Sprintf("<@&%s>", roleID),
					Inline: true,
				},
				{
					Name:   utils.SettingName(string(model.GUILD_SETTING_MOD_LOG_CHANNEL)),
					Value:  fmt.Sprintf("<#%s>", channelID),
					Inline: true,
				},
			},
		},
	}
	return "Setup completed!", embeds, nil
}

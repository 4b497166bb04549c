package utils

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"modweb/src-server/oauth"

	"github.com/bwmarrin/discordgo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/oauth2"
)

// OAuthProvider is what the auth routes need from the identity provider;
// production uses *oauth.Client, tests swap in a fake.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
	FetchUser(ctx context.Context, token *oauth2.Token) (*oauth.RemoteUser, error)
}

type AppState struct {
	Config    *Config
	RawDB     *sql.DB
	BunDB     *bun.DB
	DgSession *discordgo.Session
	OAuth     OAuthProvider

	// will be sent to Discord
	appCmdInfo map[string]*discordgo.ApplicationCommand
	// handling slash commands from Discord WSAPI
	appCmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error

	MetricChans        *Metric
	AppCloseSignalChan chan os.Signal

	startedAt             time.Time
	gracefulShutdownChans []*chan struct{}
}

func NewAppState() *AppState {
	as := &AppState{
		appCmdInfo:    make(map[string]*discordgo.ApplicationCommand),
		appCmdHandler: make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error),

		MetricChans:        NewMetric(),
		AppCloseSignalChan: make(chan os.Signal, 1),

		startedAt: time.Now(),
	}

	// env
	as.Config = NewConfig()

	// database
	var err error
	as.RawDB, err = sql.Open(sqliteshim.ShimName, "./sqlite.db?mode=rwc")
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDB.SetMaxIdleConns(8)
	as.BunDB = bun.NewDB(as.RawDB, sqlitedialect.New())

	// discord
	as.DgSession, err = discordgo.New("Bot " + as.Config.GetDiscordAppToken())
	if err != nil {
		slog.Error("cannot create discord session", "error", err)
		os.Exit(1)
	}

	// identity provider
	as.OAuth = oauth.NewClient(
		as.Config.GetDiscordClientId(),
		as.Config.GetDiscordClientSecret(),
		as.Config.GetOauthRedirectURL(),
	)

	return as
}

func (as *AppState) AddAppCmdInfo(id string, info *discordgo.ApplicationCommand) {
	as.appCmdInfo[id] = info
}

func (as *AppState) AddAppCmdHandler(id string, handler func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	as.appCmdHandler[id] = handler
}

func (as *AppState) GetAppCmdHandler(id string) (func(s *discordgo.Session, i *discordgo.InteractionCreate) error, bool) {
	handler, ok := as.appCmdHandler[id]
	return handler, ok
}

func (as *AppState) IterateAppCmdInfo(fn func(k string, v *discordgo.ApplicationCommand)) {
	for k, v := range as.appCmdInfo {
		fn(k, v)
	}
}

// NukeAppCmdInfo frees the command metadata once it has been sent to
// Discord; only the handler map is needed afterwards.
func (as *AppState) NukeAppCmdInfo() {
	as.appCmdInfo = make(map[string]*discordgo.ApplicationCommand)
}

func (as *AppState) GetUptime() time.Duration {
	return time.Since(as.startedAt)
}

// CreateGracefulShutdownChan hands out a channel that gets closed when
// GracefulShutdown runs; long-lived goroutines select on it.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	ch := make(chan struct{})
	as.gracefulShutdownChans = append(as.gracefulShutdownChans, &ch)
	return &ch
}

func (as *AppState) GracefulShutdown() {
	for _, ch := range as.gracefulShutdownChans {
		close(*ch)
	}
}

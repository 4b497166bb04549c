package route_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"modweb/src-server/jwt"
	"modweb/src-server/model"
	"modweb/src-server/oauth"
	"modweb/src-server/route"
	"modweb/src-server/utils"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/oauth2"
)

const testJwtSecret = "test-secret"

type fakeOAuth struct {
	exchangeErr  error
	fetchErr     error
	remoteID     string
	remoteName   string
	refreshedTok *oauth2.Token
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (f *fakeOAuth) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if f.refreshedTok == nil {
		return nil, fmt.Errorf("no refresh configured")
	}
	return f.refreshedTok, nil
}

func (f *fakeOAuth) FetchUser(ctx context.Context, token *oauth2.Token) (*oauth.RemoteUser, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &oauth.RemoteUser{ID: f.remoteID, Username: f.remoteName}, nil
}

func newTestAppState(t *testing.T, provider utils.OAuthProvider) *utils.AppState {
	t.Helper()
	t.Setenv("JWT_SECRET", testJwtSecret)
	t.Setenv("DISCORD_APP_TOKEN", "test-app-token")
	t.Setenv("DISCORD_CLIENT_ID", "test-client-id")
	t.Setenv("DISCORD_CLIENT_SECRET", "test-client-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "http://localhost:8080/auth/callback")

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}

	as := &utils.AppState{
		Config:      utils.NewConfig(),
		BunDB:       bundb,
		OAuth:       provider,
		MetricChans: utils.NewMetric(),
	}

	// nobody is aggregating metrics in tests, keep the channels moving
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-as.MetricChans.DatabaseRead:
			case <-as.MetricChans.DatabaseReadForAuthMiddleware:
			case <-as.MetricChans.DatabaseWrite:
			case <-as.MetricChans.DiscordSendMessage:
			case <-done:
				return
			}
		}
	}()

	return as
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// initiate a login and hand back the db-session cookie and the state
// token embedded in the authorization redirect
func initiateLogin(t *testing.T, muxer *http.ServeMux, redirectTo string) (*http.Cookie, string) {
	t.Helper()
	target := "/auth/login"
	if redirectTo != "" {
		target += "?redirectTo=" + url.QueryEscape(redirectTo)
	}
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	resp := rec.Result()

	if resp.StatusCode != http.StatusFound {
		t.Fatal("login should redirect, got", resp.StatusCode)
	}
	oauthCookie := cookieByName(resp, route.OAuthCookieName)
	if oauthCookie == nil {
		t.Fatal("login should set the db-session cookie")
	}
	locationURL, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := locationURL.Query().Get("state")
	if state == "" {
		t.Fatal("authorization redirect should carry the state token")
	}
	return oauthCookie, state
}

func TestLoginInitiate(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	oauthCookie, state := initiateLogin(t, muxer, "/dash")

	// the pending session holds the state but no token yet
	sessionModel, err := model.GetSession(context.Background(), as.BunDB, oauthCookie.Value)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel == nil {
		t.Fatal("pending session should exist")
	}
	var data struct {
		State      string `json:"state"`
		RedirectTo string `json:"redirectTo"`
	}
	if err := json.Unmarshal([]byte(sessionModel.Data), &data); err != nil {
		t.Fatal(err)
	}
	if data.State != state {
		t.Error("stored state should match the redirect's state")
	}
	if data.RedirectTo != "/dash" {
		t.Error("stored redirect target mismatch:", data.RedirectTo)
	}
	if sessionModel.Expires == "" {
		t.Error("pending session should carry an expiry marker")
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{remoteID: "discord-1", remoteName: "alice"})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	oauthCookie, _ := initiateLogin(t, muxer, "")

	req := httptest.NewRequest("GET", "/auth/callback?code=good&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: oauthCookie.Value})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusFound {
		t.Error("state mismatch should redirect, got", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != route.LoginPath {
		t.Error("state mismatch should bounce to login, got", loc)
	}
	if cookieByName(resp, route.UserCookieName) != nil {
		t.Error("no cookie session may be created on a state mismatch")
	}
	count, err := as.BunDB.NewSelect().Model((*model.User)(nil)).Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("no user may be created on a state mismatch")
	}
}

func TestCallbackSuccess(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{remoteID: "discord-1", remoteName: "alice"})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	oauthCookie, state := initiateLogin(t, muxer, "/dash")

	req := httptest.NewRequest("GET", "/auth/callback?code=good&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: oauthCookie.Value})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusFound {
		t.Fatal("callback should redirect, got", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/dash" {
		t.Error("callback should send the user to the stored target, got", loc)
	}

	// the cookie session carries exactly the local user id
	userCookie := cookieByName(resp, route.UserCookieName)
	if userCookie == nil {
		t.Fatal("callback should set the user cookie")
	}
	payload, err := jwt.Decode(userCookie.Value, testJwtSecret)
	if err != nil {
		t.Fatal(err)
	}
	userModel, err := model.GetUser(context.Background(), as.BunDB, payload.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if userModel == nil {
		t.Fatal("cookie should point at a real user")
	}
	if userModel.DiscordID != "discord-1" || userModel.Username != "alice" {
		t.Error("unexpected user", userModel)
	}

	// the db session now carries the token and no pending state
	sessionModel, err := model.GetSession(context.Background(), as.BunDB, oauthCookie.Value)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel == nil {
		t.Fatal("db session should survive login completion")
	}
	var data struct {
		State string        `json:"state"`
		Token *oauth2.Token `json:"token"`
	}
	if err := json.Unmarshal([]byte(sessionModel.Data), &data); err != nil {
		t.Fatal(err)
	}
	if data.State != "" {
		t.Error("pending state should be cleared after completion")
	}
	if data.Token == nil || data.Token.AccessToken != "access-good" {
		t.Error("db session should hold the exchanged token")
	}
}

func TestCallbackNoDuplicateUser(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{remoteID: "discord-1", remoteName: "alice"})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	for range 2 {
		oauthCookie, state := initiateLogin(t, muxer, "")
		req := httptest.NewRequest("GET", "/auth/callback?code=good&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: oauthCookie.Value})
		rec := httptest.NewRecorder()
		muxer.ServeHTTP(rec, req)
		if rec.Result().StatusCode != http.StatusFound {
			t.Fatal("callback should redirect")
		}
	}

	count, err := as.BunDB.NewSelect().Model((*model.User)(nil)).Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("repeat logins should not create duplicate users, got", count)
	}
}

func TestRefresh(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{
		refreshedTok: &oauth2.Token{AccessToken: "fresh-access", RefreshToken: "fresh-refresh"},
	})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	data, err := json.Marshal(struct {
		Token *oauth2.Token `json:"token"`
	}{Token: &oauth2.Token{AccessToken: "old-access", RefreshToken: "old-refresh"}})
	if err != nil {
		t.Fatal(err)
	}
	sessionID, err := model.CreateSession(context.Background(), as.BunDB, string(data), "")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: sessionID})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatal("refresh should succeed, got", rec.Result().StatusCode)
	}

	sessionModel, err := model.GetSession(context.Background(), as.BunDB, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	var stored struct {
		Token *oauth2.Token `json:"token"`
	}
	if err := json.Unmarshal([]byte(sessionModel.Data), &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Token == nil || stored.Token.AccessToken != "fresh-access" {
		t.Error("refresh should persist the new token")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Auth(muxer, as)

	sessionID, err := model.CreateSession(context.Background(), as.BunDB, "{}", "")
	if err != nil {
		t.Fatal(err)
	}

	for attempt := range 2 {
		req := httptest.NewRequest("GET", "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: sessionID})
		rec := httptest.NewRecorder()
		muxer.ServeHTTP(rec, req)
		resp := rec.Result()

		if resp.StatusCode != http.StatusFound {
			t.Error("logout should redirect on attempt", attempt, "got", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != route.HomePath {
			t.Error("logout should redirect home on attempt", attempt, "got", loc)
		}
		for _, name := range []string{route.UserCookieName, route.OAuthCookieName} {
			cleared := cookieByName(resp, name)
			if cleared == nil || cleared.MaxAge >= 0 || cleared.Value != "" {
				t.Error("logout should expire the", name, "cookie on attempt", attempt)
			}
		}
	}

	sessionModel, err := model.GetSession(context.Background(), as.BunDB, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel != nil {
		t.Error("logout should delete the db session")
	}
}

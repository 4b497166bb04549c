package route_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"modweb/src-server/jwt"
	"modweb/src-server/model"
	"modweb/src-server/route"
)

func TestRequireUserRedirectsAnonymous(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Me(muxer, as)

	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, httptest.NewRequest("GET", "/api/me", nil))
	resp := rec.Result()

	if resp.StatusCode != http.StatusFound {
		t.Fatal("anonymous request should redirect, got", resp.StatusCode)
	}
	locationURL, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if locationURL.Path != route.LoginPath {
		t.Error("should redirect to login, got", locationURL.Path)
	}
	if got := locationURL.Query().Get("redirectTo"); got != "/api/me" {
		t.Error("login redirect should carry the original path, got", got)
	}
}

func TestRequireUserRejectsBadSignature(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Me(muxer, as)

	token, err := jwt.Encode(jwt.Payload{UserID: "user-1", IssuedAt: time.Now().Unix()}, "wrong-secret")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: route.UserCookieName, Value: token})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusFound {
		t.Error("forged cookie should redirect to login, got", rec.Result().StatusCode)
	}
}

func TestRequireUserStaleSession(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Me(muxer, as)

	// a valid cookie pointing at a user that no longer exists
	token, err := jwt.Encode(jwt.Payload{UserID: "ghost", IssuedAt: time.Now().Unix()}, testJwtSecret)
	if err != nil {
		t.Fatal(err)
	}
	sessionID, err := model.CreateSession(context.Background(), as.BunDB, "{}", "")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: route.UserCookieName, Value: token})
	req.AddCookie(&http.Cookie{Name: route.OAuthCookieName, Value: sessionID})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)
	resp := rec.Result()

	// treated as a logout, not an error
	if resp.StatusCode != http.StatusFound {
		t.Fatal("stale session should redirect, got", resp.StatusCode)
	}
	for _, name := range []string{route.UserCookieName, route.OAuthCookieName} {
		cleared := cookieByName(resp, name)
		if cleared == nil || cleared.MaxAge >= 0 {
			t.Error("stale session should expire the", name, "cookie")
		}
	}
	sessionModel, err := model.GetSession(context.Background(), as.BunDB, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel != nil {
		t.Error("stale session should be deleted from the db")
	}
}

func TestMe(t *testing.T) {
	as := newTestAppState(t, &fakeOAuth{})
	muxer := http.NewServeMux()
	route.Me(muxer, as)

	userModel, err := model.FindOrCreateUser(context.Background(), as.BunDB, "discord-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	token, err := jwt.Encode(jwt.Payload{UserID: userModel.ID, IssuedAt: time.Now().Unix()}, testJwtSecret)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: route.UserCookieName, Value: token})
	rec := httptest.NewRecorder()
	muxer.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatal("authenticated request should succeed, got", rec.Result().StatusCode)
	}
	var body struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(rec.Result().Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ID != userModel.ID || body.Username != "alice" {
		t.Error("unexpected /api/me body", body)
	}
}

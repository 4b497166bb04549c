package route

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"modweb/src-server/jwt"
	"modweb/src-server/model"
	"modweb/src-server/utils"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// signed cookie holding the local user id
	UserCookieName = "session"
	// opaque id pointing at the server-side row in the sessions table
	OAuthCookieName = "oauth-session"

	LoginPath = "/login"
	HomePath  = "/"

	oauthSessionExpiry = time.Hour
	userSessionExpiry  = time.Hour * 24 * 7
)

// sessionData is the JSON blob stored in the sessions table. While the
// login is pending it carries the state token and the post-login target;
// once completed it carries only the OAuth token.
type sessionData struct {
	State      string        `json:"state,omitempty"`
	RedirectTo string        `json:"redirectTo,omitempty"`
	Token      *oauth2.Token `json:"token,omitempty"`
}

func Auth(muxer *http.ServeMux, as *utils.AppState) {
	// initiate: park a state token server-side and hand the user off to
	// the identity provider
	muxer.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		redirectTo := r.URL.Query().Get("redirectTo")
		if redirectTo == "" {
			redirectTo = HomePath
		}

		state := uuid.NewString()
		data, err := json.Marshal(sessionData{
			State:      state,
			RedirectTo: redirectTo,
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't serialize session data"))
			slog.Error("auth/login: can't serialize session data", "error", err)
			return
		}

		startTimer := time.Now()
		sessionID, err := model.CreateSession(
			r.Context(),
			as.BunDB,
			string(data),
			time.Now().UTC().Add(oauthSessionExpiry).Format(time.RFC3339),
		)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't create session"))
			slog.Error("auth/login: can't create session", "error", err)
			return
		}
		as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())

		http.SetCookie(w, &http.Cookie{
			Name:     OAuthCookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   int(oauthSessionExpiry.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, as.OAuth.AuthCodeURL(state), http.StatusFound)
	})

	// complete: the identity provider sent the user back with a code
	muxer.HandleFunc("GET /auth/callback", func(w http.ResponseWriter, r *http.Request) {
		oauthCookie, err := r.Cookie(OAuthCookieName)
		if err != nil {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		startTimer := time.Now()
		sessionModel, err := model.GetSession(r.Context(), as.BunDB, oauthCookie.Value)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't read session"))
			slog.Error("auth/callback: can't read session", "error", err)
			return
		case sessionModel == nil:
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		as.MetricChans.DatabaseRead <- float64(time.Since(startTimer).Microseconds())

		var data sessionData
		if err := json.Unmarshal([]byte(sessionModel.Data), &data); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't parse session data"))
			slog.Error("auth/callback: can't parse session data", "error", err)
			return
		}

		// a callback whose state doesn't match the one we parked is a
		// forged or replayed request; nothing gets persisted
		state := r.URL.Query().Get("state")
		if state == "" || data.State == "" || state != data.State {
			slog.Warn("auth/callback: state mismatch", "session", sessionModel.ID)
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		token, err := as.OAuth.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			slog.Warn("auth/callback: can't exchange code", "error", err)
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		remoteUser, err := as.OAuth.FetchUser(r.Context(), token)
		if err != nil {
			slog.Warn("auth/callback: can't fetch remote user", "error", err)
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		userModel, err := model.FindOrCreateUser(r.Context(), as.BunDB, remoteUser.ID, remoteUser.Username)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't find or create user"))
			slog.Error("auth/callback: can't find or create user", "error", err)
			return
		}

		// the two stores are disjoint, so commit them concurrently and
		// join before touching the response
		tokenData, err := json.Marshal(sessionData{Token: token})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't serialize token"))
			slog.Error("auth/callback: can't serialize token", "error", err)
			return
		}
		var (
			wg          sync.WaitGroup
			updateErr   error
			signedToken string
			signErr     error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			startTimer := time.Now()
			updateErr = model.UpdateSession(
				r.Context(),
				as.BunDB,
				sessionModel.ID,
				string(tokenData),
				time.Now().UTC().Add(userSessionExpiry).Format(time.RFC3339),
			)
			as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())
		}()
		go func() {
			defer wg.Done()
			signedToken, signErr = jwt.Encode(jwt.Payload{
				UserID:   userModel.ID,
				IssuedAt: time.Now().Unix(),
			}, as.Config.GetJwtSecret())
		}()
		wg.Wait()
		if updateErr != nil || signErr != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't commit session"))
			slog.Error("auth/callback: can't commit session", "updateErr", updateErr, "signErr", signErr)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     UserCookieName,
			Value:    signedToken,
			Path:     "/",
			MaxAge:   int(userSessionExpiry.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.SetCookie(w, &http.Cookie{
			Name:     OAuthCookieName,
			Value:    sessionModel.ID,
			Path:     "/",
			MaxAge:   int(userSessionExpiry.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		redirectTo := data.RedirectTo
		if redirectTo == "" {
			redirectTo = HomePath
		}
		http.Redirect(w, r, redirectTo, http.StatusFound)
	})

	// swap the stored OAuth token for a fresh one
	muxer.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		oauthCookie, err := r.Cookie(OAuthCookieName)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("No session cookie"))
			return
		}

		sessionModel, err := model.GetSession(r.Context(), as.BunDB, oauthCookie.Value)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't read session"))
			slog.Error("auth/refresh: can't read session", "error", err)
			return
		case sessionModel == nil:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Session not found"))
			return
		}

		var data sessionData
		if err := json.Unmarshal([]byte(sessionModel.Data), &data); err != nil || data.Token == nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("No token in session"))
			return
		}

		newToken, err := as.OAuth.Refresh(r.Context(), data.Token)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't refresh token: %s", err.Error())))
			slog.Error("auth/refresh: can't refresh token", "error", err)
			return
		}

		tokenData, err := json.Marshal(sessionData{Token: newToken})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't serialize token"))
			slog.Error("auth/refresh: can't serialize token", "error", err)
			return
		}
		startTimer := time.Now()
		if err := model.UpdateSession(r.Context(), as.BunDB, sessionModel.ID, string(tokenData), sessionModel.Expires); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't persist token"))
			slog.Error("auth/refresh: can't persist token", "error", err)
			return
		}
		as.MetricChans.DatabaseWrite <- float64(time.Since(startTimer).Microseconds())

		w.WriteHeader(http.StatusOK)
	})

	// logout: tear both sessions down no matter what state they're in
	muxer.HandleFunc("GET /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if oauthCookie, err := r.Cookie(OAuthCookieName); err == nil {
			if err := model.DeleteSession(r.Context(), as.BunDB, oauthCookie.Value); err != nil {
				slog.Warn("auth/logout: can't delete session", "error", err)
			}
		}
		ClearSessionCookies(w)
		http.Redirect(w, r, HomePath, http.StatusFound)
	})
}

// ClearSessionCookies expires both session cookies on the client.
func ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

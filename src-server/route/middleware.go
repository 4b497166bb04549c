package route

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"modweb/src-server/jwt"
	"modweb/src-server/model"
	"modweb/src-server/utils"
)

type UserCtxKeyType string

const UserCtxKey UserCtxKeyType = "user"

// UserFromContext returns the user AuthMiddleware resolved, or nil on a
// route that isn't wrapped.
func UserFromContext(ctx context.Context) *model.User {
	userModel, _ := ctx.Value(UserCtxKey).(*model.User)
	return userModel
}

// resolveUser maps the signed cookie value to a local user. A cookie
// that verifies but points at no user row is reported as stale, not as
// an error; the caller is expected to log the client out.
func resolveUser(r *http.Request, as *utils.AppState) (userModel *model.User, stale bool, err error) {
	userCookie, cookieErr := r.Cookie(UserCookieName)
	if cookieErr != nil || strings.TrimSpace(userCookie.Value) == "" {
		return nil, false, nil
	}

	payload, decodeErr := jwt.Decode(userCookie.Value, as.Config.GetJwtSecret())
	if decodeErr != nil {
		slog.Debug("resolveUser: can't decode session cookie", "error", decodeErr)
		return nil, false, nil
	}

	startTimer := time.Now()
	userModel, err = model.GetUser(r.Context(), as.BunDB, payload.UserID)
	if err != nil {
		return nil, false, err
	}
	as.MetricChans.DatabaseReadForAuthMiddleware <- float64(time.Since(startTimer).Microseconds())

	if userModel == nil {
		return nil, true, nil
	}
	return userModel, false, nil
}

// AuthMiddleware only lets authenticated requests through to next,
// putting the resolved *model.User into the request context. Anonymous
// requests get bounced to the login page carrying the original path so
// the login flow can send them back afterwards.
func AuthMiddleware(as *utils.AppState, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		loginRedirect := LoginPath + "?redirectTo=" + url.QueryEscape(r.URL.Path)

		userModel, stale, err := resolveUser(r, as)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't resolve user"))
			slog.Error("AuthMiddleware: can't resolve user", "error", err)
			return
		case stale:
			// the cookie outlived its user; treat it as a logout rather
			// than an error
			if oauthCookie, cookieErr := r.Cookie(OAuthCookieName); cookieErr == nil {
				if err := model.DeleteSession(r.Context(), as.BunDB, oauthCookie.Value); err != nil {
					slog.Warn("AuthMiddleware: can't delete stale session", "error", err)
				}
			}
			ClearSessionCookies(w)
			http.Redirect(w, r, loginRedirect, http.StatusFound)
			return
		case userModel == nil:
			http.Redirect(w, r, loginRedirect, http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), UserCtxKey, userModel)
		next(w, r.WithContext(ctx))
	}
}

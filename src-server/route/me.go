package route

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"modweb/src-server/utils"
)

func Me(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /api/me", AuthMiddleware(as, func(w http.ResponseWriter, r *http.Request) {
		userModel := UserFromContext(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		}{
			ID:       userModel.ID,
			Username: userModel.Username,
		}); err != nil {
			slog.Warn("api/me: can't encode response", "error", err)
		}
	}))
}

package passStatus

import (
	"errors"
	"log/slog"
	"net/http"

	resp "scraping_service/internal/lib/api/response"
	sl "scraping_service/internal/lib/logger"
	"scraping_service/internal/storage"
	redisStorage "scraping_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	SessionID string `json:"session_id"`
	Vendor    string `json:"vendor"`
	State     string `json:"state"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

func New(
	log *slog.Logger,
	progress *redisStorage.Storage,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.scrape.status.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		sessionID := chi.URLParam(r, "session_id")
		if sessionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing session id"))

			return
		}

		p, err := progress.Progress(r.Context(), sessionID)
		if errors.Is(err, storage.ErrProgressNotFound) {
			log.Info("Session not found", slog.String("session_id", sessionID))

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("Session not found"))

			return
		}
		if err != nil {
			log.Error("Failed to read progress", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			SessionID: p.SessionID,
			Vendor:    string(p.VendorKind),
			State:     p.State,
			Processed: p.Processed,
			Total:     p.Total,
		})
	}
}

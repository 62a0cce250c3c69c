package rescrapeListings

import (
	"errors"
	"log/slog"
	"net/http"

	resp "scraping_service/internal/lib/api/response"
	sl "scraping_service/internal/lib/logger"
	"scraping_service/internal/models"
	"scraping_service/internal/pipeline"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	Vendor string `json:"vendor" validate:"required"`
	// ListingIDs is optional; when empty the currently flagged candidates run.
	ListingIDs []int64 `json:"listing_ids"`
}

type Response struct {
	resp.Response
	SessionID        string `json:"session_id"`
	Queued           int    `json:"queued"`
	EstimatedSeconds int64  `json:"estimated_seconds"`
}

func New(
	log *slog.Logger,
	pl *pipeline.Pipeline,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.scrape.rescrape.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		kind, ok := models.ParseVendorKind(req.Vendor)
		if !ok {
			log.Error("Unknown vendor", slog.String("vendor", req.Vendor))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Unknown vendor"))

			return
		}

		started, err := pl.Rescrape(r.Context(), models.RescrapeRequest{
			VendorKind: kind,
			ListingIDs: req.ListingIDs,
		})
		switch {
		case errors.Is(err, pipeline.ErrNoRescrapeCandidates):
			log.Info("Nothing to rescrape", slog.String("vendor", string(kind)))

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("No rescrape candidates"))

			return
		case errors.Is(err, pipeline.ErrPassInProgress):
			log.Warn("Pass already running", slog.String("vendor", string(kind)))

			render.Status(r, http.StatusConflict)
			render.JSON(w, r, resp.Error("Pass already in progress"))

			return
		case err != nil:
			log.Error("Failed to start rescrape", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Rescrape started",
			slog.String("vendor", string(kind)),
			slog.String("session_id", started.SessionID),
			slog.Int("queued", started.Queued),
		)

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, Response{
			Response:         resp.OK(),
			SessionID:        started.SessionID,
			Queued:           started.Queued,
			EstimatedSeconds: int64(started.Estimate.Seconds()),
		})
	}
}

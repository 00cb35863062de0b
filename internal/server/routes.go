package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gradewise/moderation-server/api"
	"github.com/gradewise/moderation-server/internal/moderation"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/gradewise/moderation-server/internal/storage"
	"gorm.io/gorm"
)

// The platform's API gateway authenticates end users and forwards their
// identity in this header. The admin group is authorized separately by the
// bearer token.
const headerUserID = "X-User-ID"

type contextKey string

const contextKeyUserID contextKey = "moderation.user_id"

// AddModerationRoutes mounts the moderation API onto the server's public and
// admin groups.
func (srv *Server) AddModerationRoutes(svc *moderation.Service, queue *moderation.ReviewQueue) {
	srv.public.Group(func(r chi.Router) {
		r.Use(middlewareIdentity)

		r.Post("/reports", submitReportRoute(svc))
		r.Post("/appeals", createAppealRoute(svc))
		r.Get("/appeals/eligibility", appealEligibilityRoute(svc))
		r.Get("/moderation/me", myStandingRoute(svc))
	})

	srv.admin.Route("/admin", func(r chi.Router) {
		r.Post("/reports/{reportID}/resolve", resolveReportRoute(svc))
		r.Post("/appeals/{appealID}/review", reviewAppealRoute(svc))
		r.Get("/moderation/{userID}", userStandingRoute(svc))
		r.Post("/moderation/{userID}/flag", flagForReviewRoute(svc))
		r.Get("/reports", reportQueueRoute(queue))
		r.Get("/appeals", appealQueueRoute(queue))
		r.Get("/users", moderatedUsersRoute(queue))
	})
}

// middlewareIdentity requires a caller identity on every end-user route.
func middlewareIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
		if err != nil || id <= 0 {
			api.NewResponse().SetError("unauthorized", headerUserID+" header is required").Unauthorized(w)

			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, model.UserID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) model.UserID {
	id, _ := r.Context().Value(contextKeyUserID).(model.UserID)

	return id
}

// pageOf is the listing envelope shared by all queue routes.
type pageOf[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func submitReportRoute(svc *moderation.Service) http.HandlerFunc {
	type request struct {
		ReportedID int64  `json:"reported_id"`
		Category   string `json:"category"`
		Reason     string `json:"reason"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := render.Decode(r, &req); err != nil {
			api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

			return
		}

		report, err := svc.SubmitReport(r.Context(), moderation.SubmitReportInput{
			ReporterID: callerID(r),
			ReportedID: model.UserID(req.ReportedID),
			Category:   model.ReportCategory(req.Category),
			Reason:     req.Reason,
		})
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(report).Ok(w)
	}
}

func createAppealRoute(svc *moderation.Service) http.HandlerFunc {
	type request struct {
		Reason string `json:"reason"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := render.Decode(r, &req); err != nil {
			api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

			return
		}

		appeal, err := svc.CreateAppeal(r.Context(), callerID(r), req.Reason)
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(appeal).Ok(w)
	}
}

func appealEligibilityRoute(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eligible, err := svc.CanAppeal(r.Context(), callerID(r))
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(map[string]bool{"eligible": eligible}).Ok(w)
	}
}

func myStandingRoute(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := svc.UserStanding(r.Context(), callerID(r))
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(record).Ok(w)
	}
}

func resolveReportRoute(svc *moderation.Service) http.HandlerFunc {
	type request struct {
		AdminID         int64  `json:"admin_id"`
		Outcome         string `json:"outcome"`
		Notes           string `json:"notes"`
		SuspensionHours int    `json:"suspension_hours"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		reportID, err := strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
		if err != nil {
			api.NewResponse().SetError("bad_request", "invalid report id").BadRequest(w)

			return
		}

		var req request
		if err := render.Decode(r, &req); err != nil {
			api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

			return
		}

		report, err := svc.ResolveReport(r.Context(), moderation.ResolveReportInput{
			ReportID:           model.ReportID(reportID),
			AdminID:            model.UserID(req.AdminID),
			Outcome:            model.ReportOutcome(req.Outcome),
			Notes:              req.Notes,
			SuspensionDuration: time.Duration(req.SuspensionHours) * time.Hour,
		})
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(report).Ok(w)
	}
}

func reviewAppealRoute(svc *moderation.Service) http.HandlerFunc {
	type request struct {
		AdminID  int64  `json:"admin_id"`
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		appealID, err := strconv.ParseInt(chi.URLParam(r, "appealID"), 10, 64)
		if err != nil {
			api.NewResponse().SetError("bad_request", "invalid appeal id").BadRequest(w)

			return
		}

		var req request
		if err := render.Decode(r, &req); err != nil {
			api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

			return
		}

		appeal, err := svc.ReviewAppeal(r.Context(), moderation.ReviewAppealInput{
			AppealID: model.AppealID(appealID),
			AdminID:  model.UserID(req.AdminID),
			Decision: model.AppealDecision(req.Decision),
			Notes:    req.Notes,
		})
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(appeal).Ok(w)
	}
}

func userStandingRoute(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			api.NewResponse().SetError("bad_request", "invalid user id").BadRequest(w)

			return
		}

		record, err := svc.UserStanding(r.Context(), model.UserID(userID))
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(record).Ok(w)
	}
}

func flagForReviewRoute(svc *moderation.Service) http.HandlerFunc {
	type request struct {
		AdminID int64  `json:"admin_id"`
		Notes   string `json:"notes"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			api.NewResponse().SetError("bad_request", "invalid user id").BadRequest(w)

			return
		}

		var req request
		if err := render.Decode(r, &req); err != nil {
			api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

			return
		}

		record, err := svc.FlagForReview(r.Context(), model.UserID(userID), model.UserID(req.AdminID), req.Notes)
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(record).Ok(w)
	}
}

func reportQueueRoute(queue *moderation.ReviewQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pagination(r)

		items, total, err := queue.UnresolvedReports(r.Context(), page, pageSize)
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(pageOf[moderation.ReportQueueItem]{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		}).Ok(w)
	}
}

func appealQueueRoute(queue *moderation.ReviewQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pagination(r)

		items, total, err := queue.PendingAppeals(r.Context(), page, pageSize)
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(pageOf[moderation.AppealQueueItem]{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		}).Ok(w)
	}
}

func moderatedUsersRoute(queue *moderation.ReviewQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pagination(r)

		filter := storage.FilterAll
		if r.URL.Query().Get("filter") == string(storage.FilterPendingReview) {
			filter = storage.FilterPendingReview
		}

		items, total, err := queue.ModeratedUsers(r.Context(), filter, page, pageSize)
		if err != nil {
			writeModerationError(w, err)

			return
		}

		api.NewResponse().SetData(pageOf[moderation.ModeratedUserItem]{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		}).Ok(w)
	}
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	// Mirror the queue's clamping so the envelope reports the size actually used
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	switch {
	case pageSize < 1:
		pageSize = 25
	case pageSize > 100:
		pageSize = 100
	}

	return page, pageSize
}

// writeModerationError maps domain errors onto HTTP responses.
func writeModerationError(w http.ResponseWriter, err error) {
	var rateErr *moderation.RateLimitError

	switch {
	case errors.As(err, &rateErr):
		api.NewResponse().SetError("rate_limited", rateErr.Error(), map[string]any{
			"window": string(rateErr.Window),
			"limit":  rateErr.Limit,
		}).TooManyRequests(w)
	case moderation.IsValidation(err):
		api.NewResponse().SetError("validation_failed", err.Error()).BadRequest(w)
	case errors.Is(err, moderation.ErrDuplicatePendingAppeal),
		errors.Is(err, moderation.ErrAlreadySanctioned):
		api.NewResponse().SetError("conflict", err.Error()).Conflict(w)
	case errors.Is(err, moderation.ErrNotEligible):
		api.NewResponse().SetError("not_eligible", err.Error()).Forbidden(w)
	case errors.Is(err, gorm.ErrRecordNotFound):
		api.NewResponse().SetError("not_found", "Resource not found").NotFound(w)
	default:
		api.NewResponse().SetError("internal_server_error", "Internal server error").InternalServerError(w)
	}
}

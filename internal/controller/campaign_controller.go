package controller

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/httputil"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

// Headers set by the upstream auth proxy.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserRole   = "X-User-Role"
	HeaderCronSecret = "X-Cron-Secret"
	RoleAdmin        = "admin"
)

type CampaignController struct {
	Hunt       *service.HuntService
	Send       *service.SendService
	Followup   *service.FollowupService
	Campaigns  *service.CampaignService
	Scheduler  service.Cycler
	CronSecret string
	Log        *zap.Logger
}

func callerFrom(r *http.Request) (service.Caller, bool) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return service.Caller{}, false
	}
	return service.Caller{UserID: id, Admin: r.Header.Get(HeaderUserRole) == RoleAdmin}, true
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrNotRunnable):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrConflict),
		errors.Is(err, appErrors.ErrArchived),
		errors.Is(err, appErrors.ErrAlreadyReplied),
		errors.Is(err, appErrors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrDailyLimit),
		errors.Is(err, appErrors.ErrPlatformLimit),
		errors.Is(err, appErrors.ErrCooldown):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (c *CampaignController) fail(w http.ResponseWriter, err error, result any) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Log.Error("Request failed", zap.Error(err))
		if !errors.Is(err, appErrors.ErrNotConfigured) {
			msg = "internal server error"
		}
	}
	httputil.JSON(w, c.Log, status, httputil.ErrorResponse{Error: msg, Details: result})
}

// detailsOf keeps a nil result out of the error envelope.
func detailsOf[T any](res *T) any {
	if res == nil {
		return nil
	}
	return res
}

// withCaller resolves the caller and the {id} URL parameter.
func (c *CampaignController) withCaller(fn func(w http.ResponseWriter, r *http.Request, id string, caller service.Caller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r)
		if !ok {
			httputil.Error(w, c.Log, http.StatusUnauthorized, "missing "+HeaderUserID)
			return
		}
		fn(w, r, chi.URLParam(r, "id"), caller)
	}
}

func (c *CampaignController) RunHunt(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	res, err := c.Hunt.Run(r.Context(), id, caller)
	if err != nil {
		c.fail(w, err, detailsOf(res))
		return
	}
	httputil.OK(w, c.Log, res)
}

func (c *CampaignController) RunSend(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	res, err := c.Send.Run(r.Context(), id, caller)
	if err != nil {
		c.fail(w, err, detailsOf(res))
		return
	}
	httputil.OK(w, c.Log, res)
}

func (c *CampaignController) RunFollowup(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	res, err := c.Followup.Run(r.Context(), id, caller)
	if err != nil {
		c.fail(w, err, detailsOf(res))
		return
	}
	httputil.OK(w, c.Log, res)
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	if err := c.Campaigns.Pause(r.Context(), id, caller); err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, map[string]string{"campaign_id": id, "status": "paused"})
}

func (c *CampaignController) Activate(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	if err := c.Campaigns.Activate(r.Context(), id, caller); err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, map[string]string{"campaign_id": id, "status": "active"})
}

func (c *CampaignController) Runs(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httputil.Error(w, c.Log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := c.Campaigns.Runs(r.Context(), id, caller, limit)
	if err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, map[string]any{"data": runs})
}

func (c *CampaignController) Stats(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	stats, err := c.Campaigns.Stats(r.Context(), id, caller)
	if err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, stats)
}

func (c *CampaignController) ArchiveProspect(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	if err := c.Campaigns.ArchiveProspect(r.Context(), id, caller); err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, map[string]string{"prospect_id": id, "status": "closed_lost"})
}

func (c *CampaignController) MarkMeetingBooked(w http.ResponseWriter, r *http.Request, id string, caller service.Caller) {
	if err := c.Campaigns.MarkMeetingBooked(r.Context(), id, caller); err != nil {
		c.fail(w, err, nil)
		return
	}
	httputil.OK(w, c.Log, map[string]string{"prospect_id": id, "status": "meeting_booked"})
}

// AutoCycle runs one scheduler cycle on demand, for external cron triggers.
func (c *CampaignController) AutoCycle(w http.ResponseWriter, r *http.Request) {
	if c.CronSecret != "" {
		got := r.Header.Get(HeaderCronSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(c.CronSecret)) != 1 {
			httputil.Error(w, c.Log, http.StatusUnauthorized, "invalid cron secret")
			return
		}
	}
	report, err := c.Scheduler.RunCycle(r.Context())
	if err != nil {
		c.fail(w, err, detailsOf(report))
		return
	}
	httputil.OK(w, c.Log, report)
}

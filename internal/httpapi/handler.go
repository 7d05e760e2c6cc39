// Package httpapi exposes the engine over HTTP. Handlers translate typed
// engine errors into status codes and leave all decisions to the engine.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
	"rollcall/internal/schedule"
	"rollcall/internal/semester"
)

// Handler carries the API's collaborators.
type Handler struct {
	svc       *attendance.Service
	semesters semester.Store
	meetings  schedule.Store
}

// New creates a handler.
func New(svc *attendance.Service, semesters semester.Store, meetings schedule.Store) *Handler {
	return &Handler{svc: svc, semesters: semesters, meetings: meetings}
}

// Routes mounts the v1 API behind the given auth middleware.
func (h *Handler) Routes(r gin.IRouter, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1", authMW)

	v1.POST("/classes/:id/sessions", auth.RequireRole(auth.RoleLecturer), h.OpenSession)
	v1.POST("/sessions/:id/expire", auth.RequireRole(auth.RoleLecturer), h.ExpireSession)
	v1.GET("/classes/:id/summary", auth.RequireRole(auth.RoleLecturer), h.ClassSummary)

	v1.POST("/sessions/:id/check-ins", auth.RequireRole(auth.RoleStudent), h.SubmitCheckIn)
	v1.GET("/sessions/:id/status", auth.RequireRole(auth.RoleStudent), h.SessionStatus)
	v1.GET("/classes/:id/my-summary", auth.RequireRole(auth.RoleStudent), h.MySummary)

	v1.GET("/classes/:id/sessions/active", h.ActiveSessions)
	v1.GET("/classes/:id/schedule", h.ClassSchedule)
	v1.GET("/semesters/current", h.CurrentSemester)
}

type openSessionRequest struct {
	OccurrenceKey string               `json:"occurrence_key"`
	MeetingID     string               `json:"meeting_id"`
	Date          string               `json:"date"`
	OnlineMode    bool                 `json:"online_mode"`
	Location      *attendance.Location `json:"location"`
}

// OpenSession opens (or returns) the check-in window for one occurrence.
// The occurrence may be named directly or derived from a meeting id plus
// a date, defaulting to today.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	classID := c.Param("id")

	key := req.OccurrenceKey
	if key == "" {
		if req.MeetingID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "occurrence_key or meeting_id required"})
			return
		}
		meeting, err := h.meetings.MeetingByID(c.Request.Context(), req.MeetingID)
		if err != nil {
			respondError(c, err)
			return
		}
		if meeting.ClassID != classID {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "meeting does not belong to class"})
			return
		}
		date := time.Now()
		if req.Date != "" {
			date, err = time.Parse("2006-01-02", req.Date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
		}
		key = schedule.OccurrenceKey(meeting.ID, date)
	}

	sess, reused, err := h.svc.OpenSession(c.Request.Context(), auth.CallerID(c), classID, key, req.OnlineMode, req.Location)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if reused {
		status = http.StatusOK
		metrics.SessionsReused.Inc()
	} else {
		metrics.SessionsOpened.Inc()
	}
	c.JSON(status, gin.H{"session": sess, "reused": reused})
}

// ExpireSession flips a session whose window has lapsed. Calling it early
// or late is harmless; the response carries the current state.
func (h *Handler) ExpireSession(c *gin.Context) {
	sess, err := h.svc.ExpireIfDue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

type checkInRequest struct {
	Location *attendance.Location `json:"location"`
}

// SubmitCheckIn records the caller's attendance against a session.
func (h *Handler) SubmitCheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ci, err := h.svc.SubmitCheckIn(c.Request.Context(), c.Param("id"), auth.CallerID(c), req.Location)
	if err != nil {
		metrics.CheckInsRejected.WithLabelValues(rejectionReason(err)).Inc()
		respondError(c, err)
		return
	}
	metrics.CheckInsRecorded.Inc()
	c.JSON(http.StatusCreated, gin.H{"check_in": ci})
}

// SessionStatus reports the caller's derived tri-state for one session.
func (h *Handler) SessionStatus(c *gin.Context) {
	status, err := h.svc.StatusFor(c.Request.Context(), auth.CallerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// ActiveSessions lists a class's open windows.
func (h *Handler) ActiveSessions(c *gin.Context) {
	sessions, err := h.svc.ActiveSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ClassSummary aggregates every rostered student over the active semester.
func (h *Handler) ClassSummary(c *gin.Context) {
	sem, from, to, err := h.semesterWindow(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summaries, err := h.svc.ClassSummary(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []attendance.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"semester_id": sem.ID, "summaries": summaries})
}

// MySummary aggregates the caller's attendance over the active semester.
func (h *Handler) MySummary(c *gin.Context) {
	sem, from, to, err := h.semesterWindow(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.svc.StudentSummary(c.Request.Context(), auth.CallerID(c), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"semester_id": sem.ID, "summary": summary})
}

// ClassSchedule expands a class's meetings into dated occurrences for one
// week, defaulting to the current one.
func (h *Handler) ClassSchedule(c *gin.Context) {
	sem, err := h.semesters.ActiveSemester(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	week, isBreak := sem.CurrentWeek(time.Now())
	if v := c.Query("week"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < semester.FirstWeek || parsed > semester.LastWeek {
			c.JSON(http.StatusBadRequest, gin.H{"error": "week must be between 1 and 14"})
			return
		}
		// Explicit week numbers name teaching weeks; the break has none.
		week, isBreak = parsed, false
	}
	meetings, err := h.meetings.MeetingsForClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	occurrences := []schedule.Occurrence{}
	if !isBreak {
		if occ := schedule.OccurrencesForWeek(sem, meetings, week); occ != nil {
			occurrences = occ
		}
	}
	c.JSON(http.StatusOK, gin.H{"week": week, "is_break": isBreak, "occurrences": occurrences})
}

// CurrentSemester reports the active semester with its derived week.
func (h *Handler) CurrentSemester(c *gin.Context) {
	sem, err := h.semesters.ActiveSemester(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	now := time.Now()
	week, isBreak := sem.CurrentWeek(now)
	c.JSON(http.StatusOK, gin.H{
		"semester":   sem,
		"week":       week,
		"is_break":   isBreak,
		"in_session": sem.Contains(now),
	})
}

// semesterWindow resolves the active semester and its half-open session
// range, end date inclusive.
func (h *Handler) semesterWindow(c *gin.Context) (semester.Semester, time.Time, time.Time, error) {
	sem, err := h.semesters.ActiveSemester(c.Request.Context())
	if err != nil {
		return semester.Semester{}, time.Time{}, time.Time{}, err
	}
	from := semester.DateOnly(sem.StartDate)
	to := semester.DateOnly(sem.EndDate).AddDate(0, 0, 1)
	return sem, from, to, nil
}

// respondError maps engine errors onto status codes: absence is 404,
// conflicts 409, a closed window 410, rejected input 422, denial 403, and
// retryable infrastructure trouble 503.
func respondError(c *gin.Context, err error) {
	var oor *attendance.OutOfRangeError
	switch {
	case errors.Is(err, attendance.ErrClassNotFound),
		errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, schedule.ErrMeetingNotFound),
		errors.Is(err, semester.ErrNoActive):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrDuplicateActiveSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.As(err, &oor):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"distance_m": oor.DistanceM,
			"radius_m":   oor.RadiusM,
		})
	case errors.Is(err, attendance.ErrLocationRequired),
		errors.Is(err, attendance.ErrMalformedCoordinates),
		errors.Is(err, attendance.ErrMissingAnchor):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case attendance.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func rejectionReason(err error) string {
	var oor *attendance.OutOfRangeError
	switch {
	case errors.Is(err, attendance.ErrSessionExpired):
		return "expired"
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		return "duplicate"
	case errors.As(err, &oor):
		return "out_of_range"
	case errors.Is(err, attendance.ErrLocationRequired),
		errors.Is(err, attendance.ErrMalformedCoordinates),
		errors.Is(err, attendance.ErrMissingAnchor):
		return "validation"
	case errors.Is(err, attendance.ErrSessionNotFound):
		return "not_found"
	case attendance.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}

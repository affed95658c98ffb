package auditlog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/internal/httputil"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Handler handles audit trail query endpoints. Routes using this
// handler must be guarded by the admin middleware.
type Handler struct {
	logger   *slog.Logger
	recorder *audit.Recorder
}

// NewHandler creates a new audit log handler.
func NewHandler(logger *slog.Logger, recorder *audit.Recorder) *Handler {
	return &Handler{
		logger:   logger,
		recorder: recorder,
	}
}

// EntryResponse represents an audit entry in API responses.
type EntryResponse struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func entryResponse(e *domain.AuditEntry) EntryResponse {
	return EntryResponse{
		ID:         e.ID.String(),
		ActorID:    e.ActorID.String(),
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID.String(),
		CreatedAt:  e.CreatedAt,
	}
}

// List returns audit entries matching the query filters.
// GET /v1/audit?actor_id=&action=&target_type=&from=&to=&page=&per_page=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.recorder.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit log", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse(e))
	}
	httputil.JSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter
	q := r.URL.Query()

	if v := q.Get("actor_id"); v != "" {
		actorID, err := uuid.Parse(v)
		if err != nil {
			return filter, errInvalidParam("actor_id")
		}
		filter.ActorID = &actorID
	}
	if v := q.Get("action"); v != "" {
		action := domain.AuditAction(v)
		if !action.Valid() {
			return filter, errInvalidParam("action")
		}
		filter.Action = &action
	}
	if v := q.Get("target_type"); v != "" {
		filter.TargetType = &v
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("from")
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("to")
		}
		filter.To = &to
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errInvalidParam("page")
		}
		filter.Page = page
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 {
			return filter, errInvalidParam("per_page")
		}
		filter.PerPage = perPage
	}

	return filter, nil
}

type paramError string

func errInvalidParam(name string) paramError { return paramError(name) }

func (e paramError) Error() string { return "invalid " + string(e) + " parameter" }

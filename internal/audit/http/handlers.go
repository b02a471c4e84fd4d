package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

const maxDateRange = 366 * 24 * time.Hour

// QueryService defines the read contract for audit entries.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters, page audit.Page) (audit.Result, error)
}

// Authorizer decides whether a role set holds a capability.
type Authorizer interface {
	Authorize(roles rbac.RoleSet, capability catalog.Capability) bool
}

// Handler menangani permintaan pencarian audit log.
type Handler struct {
	logger     *slog.Logger
	service    QueryService
	authorizer Authorizer
	rateLimit  int
}

// NewHandler membuat handler audit baru. rateLimit adalah jumlah request per
// menit per actor; nilai <= 0 memakai default.
func NewHandler(logger *slog.Logger, service QueryService, authorizer Authorizer, rateLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	return &Handler{logger: logger, service: service, authorizer: authorizer, rateLimit: rateLimit}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if h.authorizer == nil || !h.authorizer.Authorize(actor.Roles, catalog.Cap(catalog.ModuleAudit, catalog.ActionView)) {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}

	filters, page, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Query(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("query audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseQuery(r *http.Request) (audit.Filters, audit.Page, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Actor:    strings.TrimSpace(q.Get("actor")),
		Action:   strings.TrimSpace(q.Get("action")),
		Module:   strings.TrimSpace(q.Get("module")),
		RecordID: strings.TrimSpace(q.Get("record_id")),
	}

	var err error
	if filters.From, err = parseBound(q.Get("from"), false); err != nil {
		return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_time", "from", "from must be RFC3339 or YYYY-MM-DD")
	}
	if filters.To, err = parseBound(q.Get("to"), true); err != nil {
		return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_time", "to", "to must be RFC3339 or YYYY-MM-DD")
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.From.After(filters.To) {
			return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_range", "from", "from is after to")
		}
		if filters.To.Sub(filters.From) > maxDateRange {
			return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_range", "to", "range exceeds one year")
		}
	}

	page := audit.Page{Page: 1, PageSize: audit.DefaultPageSize}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_page", "page", "page must be a positive integer")
		}
		page.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, audit.Page{}, shared.ValidationError("invalid_page", "page_size", "page_size must be a positive integer")
		}
		page.PageSize = parsed
	}
	return filters, page, nil
}

// parseBound accepts RFC3339 timestamps or plain dates. A plain upper bound
// covers the whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.New("audit: invalid time bound")
	}
	if upper {
		return day.Add(24*time.Hour - time.Microsecond), nil
	}
	return day, nil
}

package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Handler exposes the capability catalog, actor capabilities and matrix
// administration over HTTP.
type Handler struct {
	logger    *slog.Logger
	matrix    *Matrix
	evaluator *Evaluator
	validate  *validator.Validate
	rbac      Middleware
}

// NewHandler builds the RBAC HTTP handler.
func NewHandler(logger *slog.Logger, matrix *Matrix, evaluator *Evaluator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		matrix:    matrix,
		evaluator: evaluator,
		validate:  validator.New(),
		rbac:      Middleware{Evaluator: evaluator, Logger: logger},
	}
}

// MountRoutes registers RBAC routes under /rbac.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/capabilities", h.listCapabilities)
	r.Get("/me/capabilities", h.myCapabilities)
	r.Post("/authorize", h.authorize)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(catalog.Cap(catalog.ModuleRolePermissions, catalog.ActionRead)))
		r.Get("/matrix", h.exportMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(catalog.Cap(catalog.ModuleRolePermissions, catalog.ActionWrite)))
		r.Put("/matrix", h.importMatrix)
		r.Post("/grants", h.grant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(catalog.Cap(catalog.ModuleRolePermissions, catalog.ActionDelete)))
		r.Delete("/grants", h.revoke)
	})
}

type capabilityRequest struct {
	Module string `json:"module" validate:"required,max=64"`
	Action string `json:"action" validate:"required,max=64"`
}

func (c capabilityRequest) capability() catalog.Capability {
	return catalog.Cap(catalog.Module(c.Module), catalog.Action(c.Action))
}

type grantRequest struct {
	Role string `json:"role" validate:"required,max=64"`
	capabilityRequest
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": h.matrix.Catalog().Entries()})
}

func (h *Handler) myCapabilities(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"actor":        actor.ID,
		"roles":        actor.Roles,
		"capabilities": h.evaluator.EffectiveCapabilities(actor.Roles).Sorted(),
	})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req capabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": h.evaluator.Authorize(actor.Roles, req.capability())})
}

func (h *Handler) exportMatrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.matrix.Export())
}

func (h *Handler) importMatrix(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var snap Snapshot
	if err := httpx.DecodeJSON(r, &snap); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.matrix.Import(r.Context(), actor, snap); err != nil {
		h.respondError(w, "import matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.matrix.Export())
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.changeGrant(w, r, h.matrix.Grant)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.changeGrant(w, r, h.matrix.Revoke)
}

func (h *Handler) changeGrant(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor Actor, role Role, capability catalog.Capability) error) {
	actor, _ := ActorFromContext(r.Context())
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	role := Role(req.Role)
	if err := apply(r.Context(), actor, role, req.capability()); err != nil {
		h.respondError(w, "change grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, RoleGrants{Role: role, Capabilities: h.matrix.CapabilitiesOf(role).Sorted()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrBadRequest, err))
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if _, ok := shared.AsWorkflowError(err); !ok {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

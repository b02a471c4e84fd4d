package workflow

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Handler exposes workflow documents over HTTP.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers document routes under /documents.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.discard)
		r.Get("/actions", h.availableActions)
		r.Post("/actions/{action}", h.apply)
	})
}

type createRequest struct {
	Type       string           `json:"type" validate:"required,max=64"`
	Department string           `json:"department" validate:"required,max=128"`
	ParentID   *uuid.UUID       `json:"parent_id,omitempty"`
	Payload    document.Payload `json:"payload"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.engine.CreateDocument(r.Context(), CreateInput{
		Type:       document.Type(req.Type),
		Actor:      actor,
		Department: req.Department,
		ParentID:   req.ParentID,
		Payload:    req.Payload,
	})
	if err != nil {
		h.respondError(w, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.Get(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DiscardDraft(r.Context(), id, actor); err != nil {
		h.respondError(w, "discard document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) availableActions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	actions, err := h.engine.AvailableActions(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, "list actions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var payload document.Payload
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.RespondError(w, err)
			return
		}
		// Delivery payloads carry partial lines; guards check line content.
		if err := h.validate.StructExcept(&payload, "Lines"); err != nil {
			httpx.RespondError(w, errors.Join(httpx.ErrBadRequest, err))
			return
		}
	}
	res, err := h.engine.Apply(r.Context(), ApplyInput{
		DocumentID: id,
		Action:     document.Action(chi.URLParam(r, "action")),
		Actor:      actor,
		Payload:    payload,
	})
	if err != nil {
		h.respondError(w, "apply transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
	}
	return actor, ok
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrBadRequest, err))
		return uuid.Nil, false
	}
	return id, true
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

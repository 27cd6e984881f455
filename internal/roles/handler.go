package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/permissions"
	"github.com/surveyforge/surveyforge/internal/platform/httpx"
)

// Handler manages role administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   *permissions.Service
	guard     access.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, catalog *permissions.Service, guard access.Guard) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		catalog:   catalog,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("role:view"))
		r.Get("/", h.list)
		r.Get("/{roleID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("role:create"))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("role:update"))
		r.Put("/{roleID}", h.update)
		r.Post("/{roleID}/permissions", h.addPermissions)
		r.Delete("/{roleID}/permissions", h.removePermissions)
		r.Put("/{roleID}/permissions", h.setPermissions)
		r.Post("/{roleID}/recount", h.recount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("role:delete"))
		r.Delete("/{roleID}", h.remove)
	})
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	Priority    int       `json:"priority"`
	UserCount   int64     `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	DisplayName string   `json:"display_name" validate:"required,max=128"`
	Permissions []string `json:"permissions"`
	Priority    int      `json:"priority" validate:"gte=0"`
	IsActive    bool     `json:"is_active"`
}

type updateRoleRequest struct {
	Name        string `json:"name" validate:"omitempty,min=2,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=128"`
	Priority    int    `json:"priority" validate:"gte=0"`
	IsActive    bool   `json:"is_active"`
}

type permissionMutationRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,dive,required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkCodes(r.Context(), w, req.Permissions) {
		return
	}
	role, err := h.service.Create(r.Context(), CreateInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Permissions: req.Permissions,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, h.service.AddPermissions)
}

func (h *Handler) removePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, h.service.RemovePermissions)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, h.service.SetPermissions)
}

func (h *Handler) mutatePermissions(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, []string) (Role, error)) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req permissionMutationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkCodes(r.Context(), w, req.Codes) {
		return
	}
	role, err := op(r.Context(), id, req.Codes)
	if err != nil {
		h.fail(w, "mutate role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) recount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	count, err := h.service.RecountUsers(r.Context(), role.Name)
	if err != nil {
		h.fail(w, "recount role users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"name": role.Name, "user_count": count})
}

// checkCodes pre-validates permission codes against the catalog so role
// editors get a precise error instead of silently storing unknown codes.
func (h *Handler) checkCodes(ctx context.Context, w http.ResponseWriter, codes []string) bool {
	if len(codes) == 0 {
		return true
	}
	result, err := h.catalog.ValidateCodes(ctx, codes)
	if err != nil {
		h.fail(w, "validate permission codes", err)
		return false
	}
	if len(result.Invalid) > 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
			fmt.Sprintf("unknown permission codes: %s", strings.Join(result.Invalid, ", ")))
		return false
	}
	return true
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toResponse(role Role) roleResponse {
	perms := role.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Permissions: perms,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		Priority:    role.Priority,
		UserCount:   role.UserCount,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/permissions"
	"github.com/surveyforge/surveyforge/internal/platform/httpx"
)

// RecountScheduler queues a background refresh of a role's denormalized user
// counter after directory mutations.
type RecountScheduler interface {
	ScheduleRecount(ctx context.Context, roleName string) error
}

// Handler manages user directory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   *permissions.Service
	guard     access.Guard
	recounts  RecountScheduler
	validator *validator.Validate
}

// NewHandler builds Handler instance. recounts may be nil; role reassignment
// then skips the background counter refresh.
func NewHandler(logger *slog.Logger, service *Service, catalog *permissions.Service, guard access.Guard, recounts RecountScheduler) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		catalog:   catalog,
		guard:     guard,
		recounts:  recounts,
		validator: validator.New(),
	}
}

// MountRoutes registers user directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("user:view"))
		r.Get("/", h.list)
		r.Get("/{userID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("user:update"))
		r.Put("/{userID}/role", h.assignRole)
		r.Put("/{userID}/permissions", h.setCustomPermissions)
	})
}

type userResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	CustomPermissions []string  `json:"custom_permissions"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,min=2,max=64"`
}

type customPermissionsRequest struct {
	Codes []string `json:"codes"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, user := range list {
		out = append(out, toResponse(user))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	previous, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	user, err := h.service.AssignRole(r.Context(), id, strings.TrimSpace(strings.ToLower(req.Role)))
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	h.scheduleRecounts(r.Context(), previous.Role, user.Role)
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

// scheduleRecounts queues counter refreshes for the roles touched by a
// reassignment. Failures are logged, not surfaced; the cron recount catches
// up regardless.
func (h *Handler) scheduleRecounts(ctx context.Context, names ...string) {
	if h.recounts == nil {
		return
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if err := h.recounts.ScheduleRecount(ctx, name); err != nil && h.logger != nil {
			h.logger.Warn("schedule role recount", slog.String("role", name), slog.Any("error", err))
		}
	}
}

func (h *Handler) setCustomPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req customPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkCodes(r.Context(), w, req.Codes) {
		return
	}
	user, err := h.service.SetCustomPermissions(r.Context(), id, req.Codes)
	if err != nil {
		h.fail(w, "set custom permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

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

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be a UUID")
		return uuid.Nil, false
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

func toResponse(user User) userResponse {
	perms := user.CustomPermissions
	if perms == nil {
		perms = []string{}
	}
	return userResponse{
		ID:                user.ID.String(),
		Email:             user.Email,
		Name:              user.Name,
		Role:              user.Role,
		CustomPermissions: perms,
		IsActive:          user.IsActive,
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}

package permissions

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/platform/httpx"
)

// Handler manages permission catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     access.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard access.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("permission:view"))
		r.Get("/", h.list)
		r.Get("/overview", h.overview)
		r.Get("/{code}", h.get)
		r.Post("/validate", h.validateCodes)
		r.Post("/{code}/dependencies", h.dependencies)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("permission:manage"))
		r.Post("/", h.create)
		r.Put("/{code}", h.update)
		r.Delete("/{code}", h.remove)
	})
}

type permissionResponse struct {
	Code         string    `json:"code"`
	Module       string    `json:"module"`
	Action       string    `json:"action"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"is_active"`
	IsSystem     bool      `json:"is_system"`
	Dependencies []string  `json:"dependencies"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type createPermissionRequest struct {
	Code         string   `json:"code" validate:"required,contains=:"`
	Description  string   `json:"description" validate:"max=256"`
	IsActive     bool     `json:"is_active"`
	Dependencies []string `json:"dependencies"`
}

type updatePermissionRequest struct {
	Code         string   `json:"code" validate:"omitempty,contains=:"`
	Description  string   `json:"description" validate:"max=256"`
	IsActive     bool     `json:"is_active"`
	Dependencies []string `json:"dependencies"`
}

type validateCodesRequest struct {
	Codes []string `json:"codes" validate:"required,min=1"`
}

type dependenciesRequest struct {
	Held []string `json:"held"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// overview groups the catalog by module for the admin console, fanning the
// list and active-code queries out concurrently.
func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	var (
		perms  []Permission
		active []string
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		perms, err = h.service.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = h.service.ListActiveCodes(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, "permission overview", err)
		return
	}

	byModule := make(map[string][]permissionResponse)
	for _, p := range perms {
		byModule[p.Module] = append(byModule[p.Module], toResponse(p))
	}
	modules := make([]string, 0, len(byModule))
	for module := range byModule {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	httpx.JSON(w, http.StatusOK, map[string]any{
		"modules":      modules,
		"by_module":    byModule,
		"active_count": len(active),
		"total_count":  len(perms),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), CreateInput{
		Code:         req.Code,
		Description:  req.Description,
		IsActive:     req.IsActive,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "code"), UpdateInput{
		Code:         req.Code,
		Description:  req.Description,
		IsActive:     req.IsActive,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, "remove permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validateCodes(w http.ResponseWriter, r *http.Request) {
	var req validateCodesRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ValidateCodes(r.Context(), req.Codes)
	if err != nil {
		h.fail(w, "validate codes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid":   orEmpty(result.Valid),
		"invalid": orEmpty(result.Invalid),
	})
}

func (h *Handler) dependencies(w http.ResponseWriter, r *http.Request) {
	var req dependenciesRequest
	if !h.decode(w, r, &req) {
		return
	}
	missing, err := h.service.DependenciesSatisfied(r.Context(), chi.URLParam(r, "code"), req.Held)
	if err != nil {
		h.fail(w, "check dependencies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"satisfied": len(missing) == 0,
		"missing":   orEmpty(missing),
	})
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

func toResponse(p Permission) permissionResponse {
	deps := p.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return permissionResponse{
		Code:         p.Code,
		Module:       p.Module,
		Action:       p.Action,
		Description:  p.Description,
		IsActive:     p.IsActive,
		IsSystem:     p.IsSystem,
		Dependencies: deps,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

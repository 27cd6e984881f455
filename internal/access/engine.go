package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/surveyforge/surveyforge/internal/observability"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// Engine evaluates a route's declared requirement against the caller.
//
// Role checks read the token-carried role claim as of issuance time; they are
// never re-resolved from storage. Permission checks go through the cache, so
// they are fresh up to the cache TTL. The asymmetry is deliberate.
type Engine struct {
	source  PermissionSource
	metrics *observability.Metrics
}

// NewEngine constructs an Engine over the given permission source.
func NewEngine(source PermissionSource, metrics *observability.Metrics) *Engine {
	return &Engine{source: source, metrics: metrics}
}

// Decide evaluates the requirement for the caller. id is nil for anonymous
// requests. All declared requirement kinds must pass; the first deny wins.
func (e *Engine) Decide(ctx context.Context, req Requirement, id *shared.Identity) Decision {
	decision := e.decide(ctx, req, id)
	e.metrics.ObserveAccessDecision(decision.Allowed)
	return decision
}

func (e *Engine) decide(ctx context.Context, req Requirement, id *shared.Identity) Decision {
	if req.Public {
		return allow()
	}

	if len(req.Roles) > 0 {
		if d := e.decideRoles(req.Roles, id); !d.Allowed {
			return d
		}
	}

	if len(req.Permissions) > 0 {
		if d := e.decidePermissions(ctx, req, id); !d.Allowed {
			return d
		}
	}

	return allow()
}

func (e *Engine) decideRoles(roles []string, id *shared.Identity) Decision {
	if id != nil && id.HasRole(RoleSuperAdmin) {
		return allow()
	}
	for _, role := range roles {
		if id.HasRole(role) {
			return allow()
		}
	}
	return deny(fmt.Sprintf("missing one of roles: %s", strings.Join(roles, ", ")))
}

func (e *Engine) decidePermissions(ctx context.Context, req Requirement, id *shared.Identity) Decision {
	if id == nil {
		return deny("authentication required")
	}
	if id.HasRole(RoleSuperAdmin) {
		return allow()
	}

	required := normalizeCodes(req.Permissions)
	granted := toSet(e.source.Permissions(ctx, id.UserID))

	switch req.Combinator {
	case CombinatorAny:
		if hasAnyCode(granted, required) {
			return allow()
		}
		return deny(fmt.Sprintf("requires at least one of permissions: %s", strings.Join(required, ", ")))
	default:
		// AND is the default when the combinator is omitted.
		missing := missingCodes(granted, required)
		if len(missing) == 0 {
			return allow()
		}
		return deny(fmt.Sprintf("missing permissions: %s (all of: %s)", strings.Join(missing, ", "), strings.Join(required, ", ")))
	}
}

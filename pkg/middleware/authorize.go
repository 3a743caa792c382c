package middleware

import (
	"flyerportal/pkg/config"
	"flyerportal/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("middleware.access", fx.Provide(NewEnforcer))

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{RoleUser, "/api/lottery", "GET"},
	{RoleUser, "/api/lottery/summary", "GET"},
	{RoleUser, "/api/payment/*", "*"},
	{RoleUser, "/api/coupon/*", "*"},
	{RoleStaff, "/api/flyer", "POST"},
	{RoleService, "/api/internal/*", "POST"},
}

var defaultGroupings = [][]string{
	{RoleAdmin, RoleStaff},
	{RoleAdmin, RoleUser},
	{RoleAdmin, RoleService},
}

// NewEnforcer loads the casbin model and policy files from AUTH.MODEL and
// AUTH.POLICY, or falls back to the built-in route policy.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.Auth.Model != "" && cfg.Auth.Policy != "" {
		return casbin.NewEnforcer(cfg.Auth.Model, cfg.Auth.Policy)
	}
	return NewDefaultEnforcer()
}

func NewDefaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, err
	}

	return e, nil
}

// Authorize checks (role, path, method) of the authenticated principal.
func Authorize(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			abortWith(c, errutil.Unauthorized("Access token required", nil))
			return
		}

		allowed, err := e.Enforce(p.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			zap.L().Error("casbin enforce failed", zap.Error(err))
			abortWith(c, errutil.Internal("Internal server error", err))
			return
		}
		if !allowed {
			abortWith(c, errutil.Forbidden("Access denied", nil))
			return
		}

		c.Next()
	}
}

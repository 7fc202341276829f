package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

// Rule grants access to Method+Pattern for callers holding any of Roles.
// Pattern is an exact path or a prefix ending in "/**". Method "*" matches
// every method. Empty Roles means any authenticated caller.
type Rule struct {
	Method  string   `yaml:"method"`
	Pattern string   `yaml:"pattern"`
	Roles   []string `yaml:"roles"`
}

// Policy is an ordered rule table; the first matching rule wins.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

func DefaultPolicy() *Policy {
	p := &Policy{Rules: []Rule{
		{Method: http.MethodGet, Pattern: "/api/v1/products/**", Roles: []string{"USER", "ADMIN"}},
		{Method: http.MethodPost, Pattern: "/api/v1/products/**", Roles: []string{"ADMIN"}},
		{Method: http.MethodPut, Pattern: "/api/v1/products/**", Roles: []string{"ADMIN"}},
		{Method: http.MethodPatch, Pattern: "/api/v1/products/**", Roles: []string{"ADMIN"}},
		{Method: http.MethodDelete, Pattern: "/api/v1/products/**", Roles: []string{"ADMIN"}},
		{Method: "*", Pattern: "/api/v1/accounts/**", Roles: []string{"ADMIN"}},
		{Method: "*", Pattern: "/api/v1/me/**", Roles: []string{"USER", "ADMIN"}},
	}}
	_ = p.normalize()
	return p
}

func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(p.Rules) == 0 {
		return nil, errors.New("policy has no rules")
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) normalize() error {
	for i := range p.Rules {
		r := &p.Rules[i]
		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		if r.Method == "" {
			r.Method = "*"
		}
		r.Pattern = strings.TrimSpace(r.Pattern)
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("rule %d: pattern %q must start with /", i, r.Pattern)
		}
		if strings.Contains(strings.TrimSuffix(r.Pattern, "/**"), "*") {
			return fmt.Errorf("rule %d: only a trailing /** wildcard is supported in %q", i, r.Pattern)
		}
		r.Roles = NormalizeRoles(r.Roles)
	}
	return nil
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "*" && r.Method != method {
		return false
	}
	if base, ok := strings.CutSuffix(r.Pattern, "/**"); ok {
		return path == base || strings.HasPrefix(path, base+"/")
	}
	return path == r.Pattern
}

// Match returns the first rule covering the request, if any.
func (p *Policy) Match(method, path string) (Rule, bool) {
	for _, r := range p.Rules {
		if r.matches(method, path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Allowed reports whether id may call method+path. A nil id is anonymous.
func (p *Policy) Allowed(method, path string, id *Identity) bool {
	if id == nil {
		return false
	}
	rule, ok := p.Match(method, path)
	if !ok || len(rule.Roles) == 0 {
		return true
	}
	return id.HasAnyRole(rule.Roles...)
}

// Enforce rejects with 403 any non-public request whose identity is missing
// or lacks the roles its rule requires. It must run after Gate.
func (p *Policy) Enforce(publicPrefixes []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if IsPublic(req.URL.Path, publicPrefixes) {
				return next(c)
			}

			var idp *Identity
			if id, ok := IdentityFrom(c); ok {
				idp = &id
			}
			if !p.Allowed(req.Method, req.URL.Path, idp) {
				logging.FromContext(req.Context()).Warn("access_denied",
					"reason", service.FailureReason(service.ErrInsufficientRole),
					"authenticated", idp != nil,
				)
				return echo.NewHTTPError(http.StatusForbidden, http.StatusText(http.StatusForbidden)).
					SetInternal(service.ErrInsufficientRole)
			}
			return next(c)
		}
	}
}

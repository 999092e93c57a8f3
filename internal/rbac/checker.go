package rbac

import (
	"context"
	"strings"
)

// grants is one role's compiled permission list: exact names plus
// trailing-wildcard prefixes such as "lesson:" from "lesson:*".
type grants struct {
	all      bool
	exact    map[string]struct{}
	prefixes []string
}

func compile(perms []string) grants {
	g := grants{exact: make(map[string]struct{}, len(perms))}
	for _, p := range perms {
		switch {
		case p == "*":
			g.all = true
		case strings.HasSuffix(p, "*"):
			g.prefixes = append(g.prefixes, strings.TrimSuffix(p, "*"))
		default:
			g.exact[p] = struct{}{}
		}
	}
	return g
}

func (g grants) allows(perm string) bool {
	if g.all {
		return true
	}
	if _, ok := g.exact[perm]; ok {
		return true
	}
	for _, pre := range g.prefixes {
		if strings.HasPrefix(perm, pre) {
			return true
		}
	}
	return false
}

// Checker answers permission questions against a fixed role policy.
type Checker struct {
	roles map[string]grants
}

// NewChecker compiles policy; nil selects RolePermissions.
func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	c := &Checker{roles: make(map[string]grants, len(policy))}
	for role, perms := range policy {
		c.roles[role] = compile(perms)
	}
	return c
}

// Known reports whether the policy defines role at all. Tokens and logins
// naming any other role are refused.
func (c *Checker) Known(role string) bool {
	_, ok := c.roles[role]
	return ok
}

func (c *Checker) Has(role, perm string) bool {
	g, ok := c.roles[role]
	return ok && g.allows(perm)
}

// Any is true when role holds at least one of perms.
func (c *Checker) Any(role string, perms ...string) bool {
	g, ok := c.roles[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if g.allows(p) {
			return true
		}
	}
	return false
}

type roleKey struct{}

// WithRole stores the authenticated role for the guards below.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

// Package auth resolves caller identities against the engine's roles:
// admin, oracle updater, authorized ingestion principal, and policy owner.
package auth

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/model"
)

// Guard holds the admin identity and the fixed controller set. Allow-lists for
// the other roles belong to the components that own them; the guard only
// evaluates them. Callers may hold their own lock while calling into the guard.
type Guard struct {
	mu          sync.RWMutex
	admin       model.Principal
	controllers *AllowSet
	log         *zap.Logger
}

// NewGuard creates a guard with the given admin. Controllers are always
// authorized for ingestion management regardless of the principal list.
func NewGuard(admin model.Principal, controllers ...model.Principal) *Guard {
	return &Guard{
		admin:       admin,
		controllers: NewAllowSet(controllers...),
		log:         zap.L().With(zap.String("component", "auth")),
	}
}

// Admin returns the current admin.
func (g *Guard) Admin() model.Principal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

// SetAdmin replaces the admin without an authorization check. Used on restore.
func (g *Guard) SetAdmin(p model.Principal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admin = p
}

// IsAdmin reports whether caller is the admin.
func (g *Guard) IsAdmin(caller model.Principal) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return caller == g.admin
}

// IsController reports whether caller is one of the configured controllers.
func (g *Guard) IsController(caller model.Principal) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.controllers.Contains(caller)
}

// Controllers returns the configured controller identities.
func (g *Guard) Controllers() []model.Principal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.controllers.Members()
}

// RequireAdmin fails with Unauthorized unless caller is the admin.
func (g *Guard) RequireAdmin(caller model.Principal) error {
	if !g.IsAdmin(caller) {
		return model.Unauthorized("only admin can perform this action")
	}
	return nil
}

// RequireUpdater allows the admin or any member of updaters.
func (g *Guard) RequireUpdater(caller model.Principal, updaters *AllowSet) error {
	if g.IsAdmin(caller) || updaters.Contains(caller) {
		return nil
	}
	return model.Unauthorized("caller is not an authorized oracle updater")
}

// RequireAuthorized allows controllers or any member of principals.
func (g *Guard) RequireAuthorized(caller model.Principal, principals *AllowSet) error {
	if g.IsController(caller) || principals.Contains(caller) {
		return nil
	}
	return model.Unauthorized("unauthorized: caller not in authorized list")
}

// RequireOwnerOrAdmin allows the admin or the policy owner.
func (g *Guard) RequireOwnerOrAdmin(caller, owner model.Principal) error {
	if caller == owner || g.IsAdmin(caller) {
		return nil
	}
	return model.Unauthorized("only admin or policyholder can update policy")
}

// TransferAdmin hands the admin role to next. Only the current admin may call it.
func (g *Guard) TransferAdmin(caller, next model.Principal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.admin {
		return model.Unauthorized("only admin can perform this action")
	}
	if next.IsAnonymous() {
		return model.Validation("new admin must not be anonymous")
	}
	prev := g.admin
	g.admin = next
	g.log.Info("admin transferred",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return nil
}

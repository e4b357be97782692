// Package auth holds the authentication plugins the session store consults before expiring
// an idle session.
package auth

import (
	"context"

	"lms-sessions/internal/policy/engine"
	userdomain "lms-sessions/internal/user/domain"
)

// Built-in plugin names.
const (
	Manual  = "manual"
	NoLogin = "nologin"
	Policy  = "policy"
)

// Plugin is an authentication method that may keep an idle session alive past the timeout.
type Plugin interface {
	Name() string
	// IgnoreTimeout returns true to keep the session of u even though it has been idle past the timeout.
	IgnoreTimeout(ctx context.Context, u *userdomain.User, sid string, created, modified int64) (bool, error)
}

// HookFunc is the signature of a timeout veto hook.
type HookFunc func(ctx context.Context, u *userdomain.User, sid string, created, modified int64) (bool, error)

// FuncPlugin adapts a HookFunc into a named Plugin. A nil Hook never vetoes.
type FuncPlugin struct {
	PluginName string
	Hook       HookFunc
}

func (p FuncPlugin) Name() string { return p.PluginName }

func (p FuncPlugin) IgnoreTimeout(ctx context.Context, u *userdomain.User, sid string, created, modified int64) (bool, error) {
	if p.Hook == nil {
		return false, nil
	}
	return p.Hook(ctx, u, sid, created, modified)
}

// NewManual returns the plugin for locally stored passwords. It never keeps idle sessions.
func NewManual() Plugin { return FuncPlugin{PluginName: Manual} }

// NewNoLogin returns the plugin assigned to accounts that may not log in.
func NewNoLogin() Plugin { return FuncPlugin{PluginName: NoLogin} }

// PolicyPlugin delegates the timeout decision to a Rego policy.
type PolicyPlugin struct {
	eval engine.Evaluator
	now  func() int64
}

// NewPolicyPlugin returns a plugin named "policy" that asks eval about every idle session.
func NewPolicyPlugin(eval engine.Evaluator, now func() int64) *PolicyPlugin {
	return &PolicyPlugin{eval: eval, now: now}
}

func (p *PolicyPlugin) Name() string { return Policy }

func (p *PolicyPlugin) IgnoreTimeout(ctx context.Context, u *userdomain.User, sid string, created, modified int64) (bool, error) {
	return p.eval.IgnoreTimeout(ctx, engine.TimeoutInput{
		User:         u,
		SID:          sid,
		TimeCreated:  created,
		TimeModified: modified,
		Now:          p.now(),
	})
}

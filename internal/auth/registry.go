package auth

import (
	"log/slog"
	"slices"
)

// Registry resolves enabled plugin names to plugins.
type Registry struct {
	plugins map[string]Plugin
	enabled []string
	logger  *slog.Logger
}

// NewRegistry returns a registry with the built-in manual and nologin plugins registered and
// enabled, followed by the names in enabled in their configured order. Duplicates are dropped.
func NewRegistry(logger *slog.Logger, enabled []string, plugins ...Plugin) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		plugins: make(map[string]Plugin),
		logger:  logger,
	}
	r.Register(NewManual())
	r.Register(NewNoLogin())
	for _, p := range plugins {
		r.Register(p)
	}
	for _, name := range append([]string{Manual, NoLogin}, enabled...) {
		if name != "" && !slices.Contains(r.enabled, name) {
			r.enabled = append(r.enabled, name)
		}
	}
	return r
}

// Register adds or replaces the plugin under its name. It does not enable it.
func (r *Registry) Register(p Plugin) {
	r.plugins[p.Name()] = p
}

// Enabled returns the enabled plugin names in order.
func (r *Registry) Enabled() []string {
	return slices.Clone(r.enabled)
}

// Get returns the registered plugin for name.
func (r *Registry) Get(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// TimeoutVetoers returns the enabled plugins whose hooks are consulted before expiring an idle
// session. nologin is never consulted. Enabled names without a registered plugin are skipped.
func (r *Registry) TimeoutVetoers() []Plugin {
	out := make([]Plugin, 0, len(r.enabled))
	for _, name := range r.enabled {
		if name == NoLogin {
			continue
		}
		p, ok := r.plugins[name]
		if !ok {
			r.logger.Warn("auth plugin enabled but not registered", "plugin", name)
			continue
		}
		out = append(out, p)
	}
	return out
}

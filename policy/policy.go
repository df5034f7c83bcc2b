// Package policy decides whether sensitive actions may proceed.
package policy

import (
	"path"
	"strings"
)

// Action names consulted by this module.
const (
	ActionPluginLoad = "plugin.load"
	ActionHubWrite   = "hub.write"
	ActionHubRead    = "hub.read"
)

// Engine is an authorization predicate.
type Engine interface {
	Allow(action string, input map[string]any) bool
}

// AllowAll permits every action.
type AllowAll struct{}

func (AllowAll) Allow(string, map[string]any) bool { return true }

// Func adapts a function to Engine.
type Func func(action string, input map[string]any) bool

func (f Func) Allow(action string, input map[string]any) bool { return f(action, input) }

// Rules matches actions against glob patterns (path.Match syntax).
//
// Deny wins over Allowed. When Allowed is empty every action not denied is
// permitted; otherwise an action must match an Allowed pattern.
type Rules struct {
	Deny    []string `mapstructure:"deny" json:"deny,omitempty"`
	Allowed []string `mapstructure:"allow" json:"allow,omitempty"`
}

func (r Rules) Allow(action string, _ map[string]any) bool {
	if matchAny(r.Deny, action) {
		return false
	}
	if len(r.Allowed) == 0 {
		return true
	}
	return matchAny(r.Allowed, action)
}

// Resolve returns e, or AllowAll when e is nil.
func Resolve(e Engine) Engine {
	if e == nil {
		return AllowAll{}
	}
	return e
}

func matchAny(patterns []string, action string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == action {
			return true
		}
		if ok, err := path.Match(p, action); err == nil && ok {
			return true
		}
	}
	return false
}

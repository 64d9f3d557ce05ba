package features

import (
	"sort"
	"sync"
)

// Flag names understood by the engine.
const (
	// GeneralFallback lets the offer waterfall fall back to the best
	// system-wide any-card offer.
	GeneralFallback = "general_fallback"
	// SynthesizedReward lets the waterfall fabricate a 1% reward on the
	// user's first card when nothing else matched.
	SynthesizedReward = "synthesized_reward"
	// AdvisoryEnabled allows calls to the external advisory service.
	AdvisoryEnabled = "advisory_enabled"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// NewDefaultManager registers the engine flags with the given states.
func NewDefaultManager(generalFallback, synthesizedReward, advisory bool) *Manager {
	m := NewManager()
	m.Register(GeneralFallback, generalFallback, "Fall back to the best any-card offer system-wide")
	m.Register(SynthesizedReward, synthesizedReward, "Synthesize a 1% reward on the user's first card")
	m.Register(AdvisoryEnabled, advisory, "Call the external advisory service")
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled reports whether a flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Set changes the state of a registered flag and reports whether it exists.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if exists {
		flag.Enabled = enabled
	}
	return exists
}

// List returns a copy of all flags ordered by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

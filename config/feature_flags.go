package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with percentage rollout per user.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) assigns users by a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureHandwritingAnalysis = "handwriting.analysis" // stage 1 image upload and ML analysis
	FeatureReportCache         = "reports.cache"        // Redis cache of verified report lists
	FeatureAsyncEvents         = "events.async"         // deliver domain events on a worker pool
	FeatureAuditLog            = "events.audit_log"     // log every domain event
)

// LoadFeatureFlags loads defaults and applies FEATURE_* environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []Feature{
		{Name: FeatureHandwritingAnalysis, Description: "Handwriting upload and analysis", Enabled: true, RolloutPercent: 100},
		{Name: FeatureReportCache, Description: "Cache verified session reports", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAsyncEvents, Description: "Asynchronous event delivery"},
		{Name: FeatureAuditLog, Description: "Structured audit log of domain events", Enabled: true, RolloutPercent: 100},
	} {
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies overrides.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_REPORTS_CACHE=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts "reports.cache" to "FEATURE_REPORTS_CACHE".
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// Enabled reports whether a feature is on for everyone.
func (ff *FeatureFlags) Enabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[name]
	return ok && f.Enabled && f.RolloutPercent >= 100
}

// EnabledFor reports whether a feature is on for the user, honoring rollout.
func (ff *FeatureFlags) EnabledFor(name, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < f.RolloutPercent
}

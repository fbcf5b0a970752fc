package ir

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// VersionPolicy holds the current model version and the named thresholds
// transformation rules may refer to. It is passed explicitly to whatever
// resolves versions, so several policies can coexist in one process.
type VersionPolicy struct {
	current    *semver.Version
	thresholds map[string]*semver.Version
}

// NewVersionPolicy parses the current version and named thresholds.
func NewVersionPolicy(current string, thresholds map[string]string) (VersionPolicy, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return VersionPolicy{}, fmt.Errorf("current version %q: %w", current, err)
	}
	p := VersionPolicy{current: cur, thresholds: make(map[string]*semver.Version, len(thresholds))}
	for name, raw := range thresholds {
		v, err := semver.NewVersion(raw)
		if err != nil {
			return VersionPolicy{}, fmt.Errorf("threshold %q: %w", name, err)
		}
		if v.GreaterThan(cur) {
			return VersionPolicy{}, fmt.Errorf("threshold %q (%s) is above current version %s", name, v, cur)
		}
		p.thresholds[name] = v
	}
	return p, nil
}

// MustVersionPolicy is like NewVersionPolicy but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustVersionPolicy(current string, thresholds map[string]string) VersionPolicy {
	p, err := NewVersionPolicy(current, thresholds)
	if err != nil {
		panic(err)
	}
	return p
}

// Current returns the current model version.
func (p VersionPolicy) Current() *semver.Version {
	return p.current
}

// Threshold resolves a rule threshold: a named threshold first, then a
// literal semantic version.
func (p VersionPolicy) Threshold(s string) (*semver.Version, error) {
	if v, ok := p.thresholds[s]; ok {
		return v, nil
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("unknown threshold %q: not a named threshold or a version", s)
	}
	return v, nil
}

// ClientVersion resolves the version carried by an operation. Empty means
// the current version. Versions above current are rejected.
func (p VersionPolicy) ClientVersion(s string) (*semver.Version, error) {
	if s == "" {
		return p.current, nil
	}
	v, err := p.Threshold(s)
	if err != nil {
		return nil, err
	}
	if v.GreaterThan(p.current) {
		return nil, fmt.Errorf("version %s is newer than the current model version %s", v, p.current)
	}
	return v, nil
}

// IsCurrent reports whether v sees the current model unchanged.
func (p VersionPolicy) IsCurrent(v *semver.Version) bool {
	return !v.LessThan(p.current)
}

// ThresholdNames returns the named thresholds in sorted order.
func (p VersionPolicy) ThresholdNames() []string {
	names := make([]string, 0, len(p.thresholds))
	for name := range p.thresholds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

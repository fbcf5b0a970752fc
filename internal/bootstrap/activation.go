package bootstrap

import (
	"fmt"
	"path/filepath"
)

// Activation selects when lazy collaborators start.
type Activation string

const (
	// ActivationEager starts every collaborator during Start.
	ActivationEager Activation = "eager"
	// ActivationLazy defers collaborators marked Lazy until Activate.
	ActivationLazy Activation = "lazy"
)

// DefaultActivation is used when no policy is configured.
const DefaultActivation = ActivationEager

// ParseActivation parses an activation policy. Empty means the default.
func ParseActivation(s string) (Activation, error) {
	switch Activation(s) {
	case "":
		return DefaultActivation, nil
	case ActivationEager, ActivationLazy:
		return Activation(s), nil
	default:
		return "", fmt.Errorf("unknown activation policy %q (want %q or %q)", s, ActivationEager, ActivationLazy)
	}
}

// StoreDirName is the directory under the data directory holding the
// store when no explicit location is configured.
const StoreDirName = "resmodel-store"

// StorageDir returns the store directory: configured when set, otherwise
// StoreDirName under dataDir.
func StorageDir(configured, dataDir string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(dataDir, StoreDirName)
}

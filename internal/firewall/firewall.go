package firewall

import (
	"errors"
	"fmt"

	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

var (
	// ErrUnsupportedPlatform is returned by the factory for platforms
	// without a backend implementation.
	ErrUnsupportedPlatform = errors.New("unsupported platform for firewall mode")

	// ErrRuleNotFound is returned by RemoveRule when no installed rule
	// matches. Callers treat it as success: removal is idempotent.
	ErrRuleNotFound = errors.New("firewall rule not found")
)

// Backend installs and removes drop rules against one packet-filtering
// subsystem. Implementations must be safe for concurrent Install/Remove
// calls on different descriptors, and must treat a duplicate install as
// a no-op rather than corrupting their rule set.
type Backend interface {
	InstallRule(desc models.RuleDescriptor) error
	RemoveRule(matchAddress string, direction models.Direction) error
}

// NewBackend selects a backend for the given platform. When enforcement
// is disabled it returns the no-op backend so ban bookkeeping and expiry
// still run without touching the host firewall.
func NewBackend(platform, iface string, enabled bool) (Backend, error) {
	if !enabled {
		return &NoopBackend{}, nil
	}

	switch platform {
	case "linux":
		return NewIPTablesBackend(iface)
	default:
		return nil, fmt.Errorf("%w: linux is the only supported platform, you entered: %q",
			ErrUnsupportedPlatform, platform)
	}
}

// chainFor maps a traffic direction onto its filter-table chain.
func chainFor(direction models.Direction) string {
	if direction == models.DirectionOutbound {
		return "OUTPUT"
	}
	return "INPUT"
}

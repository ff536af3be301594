package firewall

import "github.com/nshruti113/ddos-mitigation-engine/internal/models"

// NoopBackend is used when enforcement is disabled. Installs and removals
// succeed trivially so the ban registry, reporting, and expiry logic are
// still exercised in observe-only mode.
type NoopBackend struct{}

func (*NoopBackend) InstallRule(models.RuleDescriptor) error { return nil }

func (*NoopBackend) RemoveRule(string, models.Direction) error { return nil }

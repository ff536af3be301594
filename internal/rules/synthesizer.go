package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/nshruti113/ddos-mitigation-engine/internal/config"
	"github.com/nshruti113/ddos-mitigation-engine/internal/firewall"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
	"github.com/nshruti113/ddos-mitigation-engine/internal/registry"
)

// Synthesizer turns an escalated offender into a concrete drop rule and
// drives it through the firewall backend. It makes no escalation decision
// of its own; that belongs to the tracker.
type Synthesizer struct {
	cfg      *config.Config
	backend  firewall.Backend
	registry *registry.Registry
}

// NewSynthesizer wires a synthesizer to its backend and ban registry.
func NewSynthesizer(cfg *config.Config, backend firewall.Backend, reg *registry.Registry) *Synthesizer {
	return &Synthesizer{cfg: cfg, backend: backend, registry: reg}
}

// Synthesize builds the rule descriptor for an offender. The side of the
// connection that is not the monitored host's own address is the one the
// rule drops traffic for.
func (s *Synthesizer) Synthesize(offender *models.Offender) models.RuleDescriptor {
	fromIP, toIP, _ := strings.Cut(offender.Source, "/")

	local := s.cfg.LocalAddress(config.FamilyOf(fromIP))
	matchAddress := fromIP
	if fromIP == local {
		matchAddress = toIP
	}

	direction := models.DirectionInbound
	if offender.Outbound {
		direction = models.DirectionOutbound
	}

	return models.RuleDescriptor{
		Interface:    s.cfg.InterfaceName,
		MatchAddress: matchAddress,
		Action:       "DROP",
		Direction:    direction,
		PortMatches:  offender.PortMappings,
	}
}

// Escalate installs the offender's drop rule and records the ban. On
// install failure no ban is recorded and the error is returned for
// reporting; the caller keeps the offender escalated either way.
func (s *Synthesizer) Escalate(offender *models.Offender) (models.BanEntry, error) {
	desc := s.Synthesize(offender)

	if err := s.backend.InstallRule(desc); err != nil {
		return models.BanEntry{}, fmt.Errorf("installing rule for %s: %w", desc.MatchAddress, err)
	}

	entry := models.BanEntry{
		MatchedAddress:    desc.MatchAddress,
		Direction:         desc.Direction,
		InstalledAtMinute: models.UnixMinute(time.Now()),
	}
	s.registry.Add(entry)

	return entry, nil
}

package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshruti113/ddos-mitigation-engine/internal/config"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
	"github.com/nshruti113/ddos-mitigation-engine/internal/registry"
)

type fakeBackend struct {
	installs   []models.RuleDescriptor
	installErr error
}

func (b *fakeBackend) InstallRule(desc models.RuleDescriptor) error {
	if b.installErr != nil {
		return b.installErr
	}
	b.installs = append(b.installs, desc)
	return nil
}

func (b *fakeBackend) RemoveRule(string, models.Direction) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		InterfaceName: "eth0",
		LocalAddrs:    map[string]string{config.FamilyIPv4: "10.0.0.5"},
		NaughtyCount:  10,
		BanTTLMinutes: 60,
	}
}

func TestSynthesizeOutbound(t *testing.T) {
	s := NewSynthesizer(testConfig(), &fakeBackend{}, registry.New())

	offender := &models.Offender{
		Source:       "10.0.0.5/1.2.3.4",
		Offenses:     11,
		PortMappings: []models.PortProtocol{{Port: 4444, Protocol: "TCP"}},
		Outbound:     true,
	}

	desc := s.Synthesize(offender)
	assert.Equal(t, "eth0", desc.Interface)
	assert.Equal(t, "1.2.3.4", desc.MatchAddress, "the non-local side is the one to drop")
	assert.Equal(t, "DROP", desc.Action)
	assert.Equal(t, models.DirectionOutbound, desc.Direction)
	assert.Equal(t, offender.PortMappings, desc.PortMatches)
}

func TestSynthesizeInbound(t *testing.T) {
	s := NewSynthesizer(testConfig(), &fakeBackend{}, registry.New())

	offender := &models.Offender{
		Source:       "8.8.8.8/10.0.0.5",
		Offenses:     11,
		PortMappings: []models.PortProtocol{{Port: 22, Protocol: "TCP"}},
		Outbound:     false,
	}

	desc := s.Synthesize(offender)
	assert.Equal(t, "8.8.8.8", desc.MatchAddress)
	assert.Equal(t, models.DirectionInbound, desc.Direction)
}

func TestEscalateRecordsBanAtCurrentMinute(t *testing.T) {
	backend := &fakeBackend{}
	reg := registry.New()
	s := NewSynthesizer(testConfig(), backend, reg)

	offender := &models.Offender{
		Source:       "8.8.8.8/10.0.0.5",
		Offenses:     11,
		PortMappings: []models.PortProtocol{{Port: 22, Protocol: "TCP"}},
	}

	entry, err := s.Escalate(offender)
	require.NoError(t, err)
	require.Len(t, backend.installs, 1)

	assert.Equal(t, "8.8.8.8", entry.MatchedAddress)
	assert.Equal(t, models.DirectionInbound, entry.Direction)
	assert.Equal(t, models.UnixMinute(time.Now()), entry.InstalledAtMinute)

	stored, ok := reg.Get("8.8.8.8", models.DirectionInbound)
	require.True(t, ok)
	assert.Equal(t, entry, stored)
}

func TestEscalateInstallFailureRecordsNoBan(t *testing.T) {
	backend := &fakeBackend{installErr: errors.New("iptables: permission denied")}
	reg := registry.New()
	s := NewSynthesizer(testConfig(), backend, reg)

	offender := &models.Offender{
		Source:       "8.8.8.8/10.0.0.5",
		Offenses:     11,
		PortMappings: []models.PortProtocol{{Port: 22, Protocol: "TCP"}},
	}

	_, err := s.Escalate(offender)
	require.Error(t, err)
	assert.ErrorContains(t, err, "8.8.8.8")
	assert.Equal(t, 0, reg.Len())
}

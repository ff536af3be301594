package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

func TestNewBackendUnsupportedPlatform(t *testing.T) {
	_, err := NewBackend("plan9", "eth0", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.ErrorContains(t, err, "linux")
	assert.ErrorContains(t, err, "plan9")
}

func TestNewBackendDisabledReturnsNoop(t *testing.T) {
	// With enforcement off the platform doesn't matter.
	backend, err := NewBackend("plan9", "eth0", false)
	require.NoError(t, err)
	assert.IsType(t, &NoopBackend{}, backend)
}

func TestNoopBackendSucceedsTrivially(t *testing.T) {
	backend := &NoopBackend{}

	assert.NoError(t, backend.InstallRule(models.RuleDescriptor{
		Interface:    "eth0",
		MatchAddress: "1.2.3.4",
		Action:       "DROP",
		Direction:    models.DirectionInbound,
	}))
	assert.NoError(t, backend.RemoveRule("1.2.3.4", models.DirectionInbound))
}

func TestChainForDirection(t *testing.T) {
	assert.Equal(t, "INPUT", chainFor(models.DirectionInbound))
	assert.Equal(t, "OUTPUT", chainFor(models.DirectionOutbound))
}

func TestRuleSpecInbound(t *testing.T) {
	b := &IPTablesBackend{iface: "eth0"}
	desc := models.RuleDescriptor{
		Interface:    "eth0",
		MatchAddress: "8.8.8.8",
		Action:       "DROP",
		Direction:    models.DirectionInbound,
	}

	spec := b.ruleSpec(desc, "TCP", []int{22, 80})
	assert.Equal(t, []string{
		"-i", "eth0", "-s", "8.8.8.8",
		"-p", "tcp", "-m", "multiport", "--dports", "22,80",
		"-j", "DROP",
	}, spec)
}

func TestRuleSpecOutbound(t *testing.T) {
	b := &IPTablesBackend{iface: "eth0"}
	desc := models.RuleDescriptor{
		Interface:    "eth0",
		MatchAddress: "1.2.3.4",
		Action:       "DROP",
		Direction:    models.DirectionOutbound,
	}

	spec := b.ruleSpec(desc, "TCP", []int{4444})
	assert.Equal(t, []string{
		"-o", "eth0", "-d", "1.2.3.4",
		"-p", "tcp", "-m", "multiport", "--sports", "4444",
		"-j", "DROP",
	}, spec)
}

func TestPortsByProtocol(t *testing.T) {
	grouped := portsByProtocol([]models.PortProtocol{
		{Port: 80, Protocol: "TCP"},
		{Port: 22, Protocol: "TCP"},
		{Port: 53, Protocol: "UDP"},
	})

	assert.Equal(t, map[string][]int{
		"TCP": {22, 80},
		"UDP": {53},
	}, grouped)
}

func TestRuleMatchesAddress(t *testing.T) {
	assert.True(t, ruleMatchesAddress([]string{"-s", "8.8.8.8/32", "-j", "DROP"}, "8.8.8.8"))
	assert.True(t, ruleMatchesAddress([]string{"-d", "1.2.3.4", "-j", "DROP"}, "1.2.3.4"))
	assert.False(t, ruleMatchesAddress([]string{"-s", "8.8.8.9/32", "-j", "DROP"}, "8.8.8.8"))
	assert.False(t, ruleMatchesAddress([]string{"-j", "DROP"}, "8.8.8.8"))
}

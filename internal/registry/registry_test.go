package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshruti113/ddos-mitigation-engine/internal/firewall"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

// sweepBackend records removals and can fail per address.
type sweepBackend struct {
	mu       sync.Mutex
	removed  []string
	failWith map[string]error
}

func (b *sweepBackend) InstallRule(models.RuleDescriptor) error { return nil }

func (b *sweepBackend) RemoveRule(matchAddress string, _ models.Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failWith[matchAddress]; ok {
		return err
	}
	b.removed = append(b.removed, matchAddress)
	return nil
}

func entry(addr string, direction models.Direction, minute int64) models.BanEntry {
	return models.BanEntry{
		MatchedAddress:    addr,
		Direction:         direction,
		InstalledAtMinute: minute,
	}
}

func TestAddGetRemovePartitionedByDirection(t *testing.T) {
	reg := New()

	reg.Add(entry("1.2.3.4", models.DirectionInbound, 100))
	reg.Add(entry("1.2.3.4", models.DirectionOutbound, 200))

	in, ok := reg.Get("1.2.3.4", models.DirectionInbound)
	require.True(t, ok)
	assert.EqualValues(t, 100, in.InstalledAtMinute)

	out, ok := reg.Get("1.2.3.4", models.DirectionOutbound)
	require.True(t, ok)
	assert.EqualValues(t, 200, out.InstalledAtMinute)

	assert.True(t, reg.Has("1.2.3.4"))
	assert.Equal(t, 2, reg.Len())

	reg.Remove("1.2.3.4", models.DirectionInbound)
	assert.True(t, reg.Has("1.2.3.4"), "outbound ban still active")
	reg.Remove("1.2.3.4", models.DirectionOutbound)
	assert.False(t, reg.Has("1.2.3.4"))
}

func TestExpireStaleBans(t *testing.T) {
	reg := New()
	backend := &sweepBackend{}

	reg.Add(entry("1.2.3.4", models.DirectionInbound, 100))  // 60 minutes old: stale
	reg.Add(entry("5.6.7.8", models.DirectionOutbound, 130)) // 30 minutes old: fresh

	removed, err := reg.ExpireStaleBans(160, 60, backend)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "1.2.3.4", removed[0].MatchedAddress)

	assert.False(t, reg.Has("1.2.3.4"))
	assert.True(t, reg.Has("5.6.7.8"))

	// A second sweep with no new bans removes nothing.
	removed, err = reg.ExpireStaleBans(160, 60, backend)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, []string{"1.2.3.4"}, backend.removed)
}

func TestExpiryBoundaryIsInclusive(t *testing.T) {
	reg := New()
	backend := &sweepBackend{}

	reg.Add(entry("1.2.3.4", models.DirectionInbound, 100))

	// Exactly ttl minutes old counts as stale.
	removed, err := reg.ExpireStaleBans(110, 10, backend)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}

func TestExpiryTreatsNotFoundAsSuccess(t *testing.T) {
	reg := New()
	backend := &sweepBackend{failWith: map[string]error{
		"1.2.3.4": firewall.ErrRuleNotFound,
	}}

	// Rule was removed outside the engine; the registry entry still goes.
	reg.Add(entry("1.2.3.4", models.DirectionInbound, 0))

	removed, err := reg.ExpireStaleBans(100, 10, backend)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.False(t, reg.Has("1.2.3.4"))
}

func TestExpiryRetainsEntriesOnRemoveFailure(t *testing.T) {
	reg := New()
	removeErr := errors.New("iptables: resource temporarily unavailable")
	backend := &sweepBackend{failWith: map[string]error{
		"1.2.3.4": removeErr,
	}}

	reg.Add(entry("1.2.3.4", models.DirectionInbound, 0))
	reg.Add(entry("5.6.7.8", models.DirectionInbound, 0))

	removed, err := reg.ExpireStaleBans(100, 10, backend)
	require.Error(t, err)
	assert.ErrorContains(t, err, "temporarily unavailable")

	// The failing entry is retained for the next sweep; the other one went.
	assert.True(t, reg.Has("1.2.3.4"))
	assert.False(t, reg.Has("5.6.7.8"))
	require.Len(t, removed, 1)
	assert.Equal(t, "5.6.7.8", removed[0].MatchedAddress)
}

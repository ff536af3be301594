package registry

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/nshruti113/ddos-mitigation-engine/internal/firewall"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

// Registry tracks currently-installed drop rules, partitioned by traffic
// direction. It is the authoritative record for expiry: the host firewall
// may diverge (rules removed by hand), which the sweep tolerates.
type Registry struct {
	mu       sync.Mutex
	inbound  map[string]models.BanEntry
	outbound map[string]models.BanEntry
}

// New creates an empty ban registry.
func New() *Registry {
	return &Registry{
		inbound:  make(map[string]models.BanEntry),
		outbound: make(map[string]models.BanEntry),
	}
}

func (r *Registry) partition(direction models.Direction) map[string]models.BanEntry {
	if direction == models.DirectionOutbound {
		return r.outbound
	}
	return r.inbound
}

// Add records a successfully installed ban.
func (r *Registry) Add(entry models.BanEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partition(entry.Direction)[entry.MatchedAddress] = entry
}

// Has reports whether an address holds an active ban in either direction.
func (r *Registry) Has(matchAddress string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inbound[matchAddress]; ok {
		return true
	}
	_, ok := r.outbound[matchAddress]
	return ok
}

// Get returns the ban entry for an address in one direction.
func (r *Registry) Get(matchAddress string, direction models.Direction) (models.BanEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.partition(direction)[matchAddress]
	return entry, ok
}

// Remove drops a ban entry from the registry.
func (r *Registry) Remove(matchAddress string, direction models.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.partition(direction), matchAddress)
}

// Entries returns a snapshot of every active ban.
func (r *Registry) Entries() []models.BanEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]models.BanEntry, 0, len(r.inbound)+len(r.outbound))
	for _, entry := range r.inbound {
		entries = append(entries, entry)
	}
	for _, entry := range r.outbound {
		entries = append(entries, entry)
	}
	return entries
}

// Len returns the number of active bans.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbound) + len(r.outbound)
}

// ExpireStaleBans removes every ban whose age in whole minutes has reached
// ttlMinutes, uninstalling its rule through the backend first. A rule the
// backend no longer knows about counts as removed. Entries whose removal
// fails for any other reason stay in the registry for the next sweep; the
// failures are accumulated into the returned error.
//
// The registry lock is held per entry, never across a backend call, so
// flow processing is not blocked behind a sweep.
func (r *Registry) ExpireStaleBans(nowMinute, ttlMinutes int64, backend firewall.Backend) ([]models.BanEntry, error) {
	stale := make([]models.BanEntry, 0)
	r.mu.Lock()
	for _, partition := range []map[string]models.BanEntry{r.inbound, r.outbound} {
		for _, entry := range partition {
			if nowMinute-entry.InstalledAtMinute >= ttlMinutes {
				stale = append(stale, entry)
			}
		}
	}
	r.mu.Unlock()

	removed := make([]models.BanEntry, 0, len(stale))
	var result *multierror.Error
	for _, entry := range stale {
		err := backend.RemoveRule(entry.MatchedAddress, entry.Direction)
		if err != nil && !errors.Is(err, firewall.ErrRuleNotFound) {
			result = multierror.Append(result, err)
			continue
		}
		r.Remove(entry.MatchedAddress, entry.Direction)
		removed = append(removed, entry)
	}

	return removed, result.ErrorOrNil()
}

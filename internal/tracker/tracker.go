package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nshruti113/ddos-mitigation-engine/internal/config"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
	"github.com/nshruti113/ddos-mitigation-engine/internal/registry"
	"github.com/nshruti113/ddos-mitigation-engine/internal/rules"
)

// Tracker owns the live offender table and applies the escalation policy
// to each classified-malicious flow. Flows are fed in one at a time by a
// single worker; the mutex additionally lets the HTTP API read snapshots
// while the worker runs.
type Tracker struct {
	mu        sync.Mutex
	cfg       *config.Config
	offenders map[string]*models.Offender
	synth     *rules.Synthesizer
	registry  *registry.Registry
	events    chan<- models.FlowEvent
}

// New creates a tracker with an empty offender table. Per-flow
// dispositions are reported on the events channel.
func New(cfg *config.Config, synth *rules.Synthesizer, reg *registry.Registry, events chan<- models.FlowEvent) *Tracker {
	return &Tracker{
		cfg:       cfg,
		offenders: make(map[string]*models.Offender),
		synth:     synth,
		registry:  reg,
		events:    events,
	}
}

// RecordFlow processes one flow already classified as malicious.
//
// A repeat offense past the naughty count atomically removes the offender
// from the live table and escalates it to a block. The table lock is
// released before the backend install call: a lost update during the call
// is tolerable since duplicate installs are backend no-ops.
func (t *Tracker) RecordFlow(flow models.Flow) {
	local := t.cfg.LocalAddress(config.FamilyOf(flow.SourceIP))
	outbound := flow.SourceIP == local

	// The locally-relevant port for this direction.
	port := flow.DestPort
	if outbound {
		port = flow.SourcePort
	}

	key := flow.ConnectionKey()

	t.mu.Lock()
	offender, known := t.offenders[key]
	if known {
		offender.AddOffense(port, flow.Protocol)
		if offender.Offenses > t.cfg.NaughtyCount {
			// No longer tracked, now blocked.
			delete(t.offenders, key)
			t.mu.Unlock()
			t.escalate(key, offender)
			return
		}
		offenses := offender.Offenses
		t.mu.Unlock()
		t.emit(models.FlowEvent{
			Disposition:   models.DispositionReoffended,
			ConnectionKey: key,
			Offenses:      offenses,
		})
		return
	}
	t.mu.Unlock()

	// An address that already holds an active ban doesn't get re-tracked;
	// its rule is installed and re-escalating would be wasted work.
	remote := flow.DestIP
	if !outbound {
		remote = flow.SourceIP
	}
	if t.registry.Has(remote) {
		t.emit(models.FlowEvent{
			Disposition:   models.DispositionAlreadyBanned,
			ConnectionKey: key,
			MatchAddress:  remote,
		})
		return
	}

	t.mu.Lock()
	t.offenders[key] = models.NewOffender(key, port, flow.Protocol, outbound)
	t.mu.Unlock()
	t.emit(models.FlowEvent{
		Disposition:   models.DispositionTracked,
		ConnectionKey: key,
		Offenses:      1,
	})
}

// escalate hands an offender to the synthesizer. An install failure is
// reported but never propagates into flow processing for other keys; the
// failed offender goes back into the table with its count intact, still
// past the threshold, so the next flow on the same key retries the
// install instead of restarting the count.
func (t *Tracker) escalate(key string, offender *models.Offender) {
	entry, err := t.synth.Escalate(offender)
	if err != nil {
		t.mu.Lock()
		if _, exists := t.offenders[key]; !exists {
			t.offenders[key] = offender
		}
		t.mu.Unlock()
		t.emit(models.FlowEvent{
			Disposition:   models.DispositionInstallFailed,
			ConnectionKey: key,
			Offenses:      offender.Offenses,
			Error:         err.Error(),
		})
		return
	}

	t.emit(models.FlowEvent{
		Disposition:   models.DispositionEscalated,
		ConnectionKey: key,
		Offenses:      offender.Offenses,
		MatchAddress:  entry.MatchedAddress,
		Direction:     entry.Direction,
	})
}

func (t *Tracker) emit(event models.FlowEvent) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()
	if t.events != nil {
		t.events <- event
	}
}

// Offenders returns a snapshot of the live offender table.
func (t *Tracker) Offenders() []models.Offender {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make([]models.Offender, 0, len(t.offenders))
	for _, offender := range t.offenders {
		snapshot = append(snapshot, *offender)
	}
	return snapshot
}

// Len returns the number of live offenders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offenders)
}

package models

import "time"

// Direction classifies which side of the monitored host a flow targets.
// It maps directly onto the firewall chain the eventual rule lands in:
// inbound traffic is filtered on INPUT, outbound on OUTPUT.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Flow represents a single network flow already classified as malicious
// by the upstream classifier. The engine never sees benign flows.
type Flow struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SourceIP   string    `json:"source_ip"`
	DestIP     string    `json:"dest_ip"`
	SourcePort int       `json:"source_port"`
	DestPort   int       `json:"dest_port"`
	Protocol   string    `json:"protocol"` // TCP, UDP
}

// Valid reports whether the flow tuple is complete enough to track.
// Malformed tuples are rejected at the ingest boundary.
func (f Flow) Valid() bool {
	return f.SourceIP != "" && f.DestIP != "" &&
		f.SourcePort > 0 && f.SourcePort <= 65535 &&
		f.DestPort > 0 && f.DestPort <= 65535 &&
		f.Protocol != ""
}

// ConnectionKey returns the direction-sensitive identity for this flow.
// A reversed flow produces a different key on purpose.
func (f Flow) ConnectionKey() string {
	return f.SourceIP + "/" + f.DestIP
}

// PortProtocol is one (port, protocol) pair observed on a connection.
type PortProtocol struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

// Offender accumulates abuse state for one directed connection identity.
type Offender struct {
	Source       string         `json:"source"` // "fromIP/toIP"
	Offenses     int            `json:"offenses"`
	PortMappings []PortProtocol `json:"port_mappings"`
	Outbound     bool           `json:"outbound"`
}

// NewOffender registers a first offense for a connection.
func NewOffender(source string, port int, protocol string, outbound bool) *Offender {
	return &Offender{
		Source:       source,
		Offenses:     1,
		PortMappings: []PortProtocol{{Port: port, Protocol: protocol}},
		Outbound:     outbound,
	}
}

// AddOffense records a repeat offense and accumulates its port/protocol pair.
func (o *Offender) AddOffense(port int, protocol string) {
	o.Offenses++
	pair := PortProtocol{Port: port, Protocol: protocol}
	for _, existing := range o.PortMappings {
		if existing == pair {
			return
		}
	}
	o.PortMappings = append(o.PortMappings, pair)
}

// RuleDescriptor describes one concrete drop rule for the firewall backend.
type RuleDescriptor struct {
	Interface    string         `json:"interface"`
	MatchAddress string         `json:"match_address"`
	Action       string         `json:"action"` // DROP
	Direction    Direction      `json:"direction"`
	PortMatches  []PortProtocol `json:"port_matches"`
}

// BanEntry records one successfully installed drop rule.
type BanEntry struct {
	MatchedAddress    string    `json:"matched_address"`
	Direction         Direction `json:"direction"`
	InstalledAtMinute int64     `json:"installed_at_minute"`
}

// UnixMinute truncates a timestamp to whole minutes since the epoch.
// Ban TTL arithmetic is defined in whole minutes.
func UnixMinute(t time.Time) int64 {
	return t.Unix() / 60
}

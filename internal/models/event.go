package models

import "time"

// Flow dispositions reported on the event side channel.
const (
	DispositionTracked       = "tracked"
	DispositionReoffended    = "reoffended"
	DispositionEscalated     = "escalated"
	DispositionAlreadyBanned = "already_banned"
	DispositionInstallFailed = "install_failed"
)

// FlowEvent reports what the engine did with one processed flow.
type FlowEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Disposition   string    `json:"disposition"`
	ConnectionKey string    `json:"connection_key"`
	Offenses      int       `json:"offenses"`
	MatchAddress  string    `json:"match_address,omitempty"`
	Direction     Direction `json:"direction,omitempty"`
	Error         string    `json:"error,omitempty"`
}

package config

import (
	"fmt"
	"net"
	"time"
)

// Address families used as keys in Config.LocalAddrs.
const (
	FamilyIPv4 = "ipv4"
	FamilyIPv6 = "ipv6"
)

// Config holds the engine configuration. It is built once at startup and
// passed into every component that needs it; nothing reads ambient state.
type Config struct {
	InterfaceName   string
	LocalAddrs      map[string]string // address family -> interface address
	NaughtyCount    int               // offense threshold before escalation
	FirewallEnabled bool
	Platform        string
	BanTTLMinutes   int64
	SweepInterval   time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ListenAddr      string
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.NaughtyCount < 1 {
		return fmt.Errorf("naughty count must be positive, got %d", c.NaughtyCount)
	}
	if c.BanTTLMinutes < 1 {
		return fmt.Errorf("ban TTL must be a positive number of minutes, got %d", c.BanTTLMinutes)
	}
	if len(c.LocalAddrs) == 0 {
		return fmt.Errorf("no local address configured for interface %q", c.InterfaceName)
	}
	return nil
}

// LocalAddress returns the configured address for an address family,
// or "" when none is configured for that family.
func (c *Config) LocalAddress(family string) string {
	return c.LocalAddrs[family]
}

// FamilyOf returns the address family of an IP string. Unparseable
// addresses are treated as IPv4 so direction inference stays best-effort.
func FamilyOf(addr string) string {
	ip := net.ParseIP(addr)
	if ip != nil && ip.To4() == nil {
		return FamilyIPv6
	}
	return FamilyIPv4
}

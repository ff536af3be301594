package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		InterfaceName: "eth0",
		LocalAddrs:    map[string]string{FamilyIPv4: "10.0.0.5"},
		NaughtyCount:  10,
		BanTTLMinutes: 60,
		SweepInterval: time.Minute,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	zeroNaughty := validConfig()
	zeroNaughty.NaughtyCount = 0
	assert.Error(t, zeroNaughty.Validate())

	zeroTTL := validConfig()
	zeroTTL.BanTTLMinutes = 0
	assert.Error(t, zeroTTL.Validate())

	noAddrs := validConfig()
	noAddrs.LocalAddrs = nil
	assert.Error(t, noAddrs.Validate())
}

func TestLocalAddress(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "10.0.0.5", cfg.LocalAddress(FamilyIPv4))
	assert.Equal(t, "", cfg.LocalAddress(FamilyIPv6))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyIPv4, FamilyOf("10.0.0.5"))
	assert.Equal(t, FamilyIPv6, FamilyOf("2001:db8::1"))
	// Unparseable addresses fall back to IPv4 for best-effort inference.
	assert.Equal(t, FamilyIPv4, FamilyOf("not-an-address"))
}

package authkit

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.RedisPrefix = "  " }},
		{"prefix with whitespace", func(c *Config) { c.RedisPrefix = "auth kit" }},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"zero lockout window", func(c *Config) { c.Lockout.Window = 0 }},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }},
		{"zero confirm ttl", func(c *Config) { c.Recovery.ConfirmEmailTTL = 0 }},
		{"zero reset ttl", func(c *Config) { c.Recovery.PasswordResetTTL = 0 }},
		{"negative delay min", func(c *Config) { c.Recovery.EnumerationDelayMin = -time.Millisecond }},
		{"delay max below min", func(c *Config) {
			c.Recovery.EnumerationDelayMin = 40 * time.Millisecond
			c.Recovery.EnumerationDelayMax = 20 * time.Millisecond
		}},
		{"delay max too large", func(c *Config) { c.Recovery.EnumerationDelayMax = 2 * time.Second }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"remember below session", func(c *Config) { c.Session.RememberTTL = c.Session.TTL - time.Minute }},
		{"bad signing method", func(c *Config) { c.Session.SigningMethod = "rs256" }},
		{"short min password", func(c *Config) { c.Password.MinLength = 5 }},
		{"negative max hashtags", func(c *Config) { c.Profile.MaxHashtags = -1 }},
		{"audit without buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestProductionModeHardening(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"hs256 signing", func(c *Config) { c.Session.SigningMethod = "hs256" }},
		{"audit disabled", func(c *Config) { c.Audit.Enabled = false }},
		{"long reset ttl", func(c *Config) { c.Recovery.PasswordResetTTL = 2 * time.Hour }},
		{"no enumeration delay", func(c *Config) {
			c.Recovery.EnumerationDelayMin = 0
			c.Recovery.EnumerationDelayMax = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.ProductionMode = true
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a production-mode error")
			}
		})
	}

	cfg := defaultConfig()
	cfg.Security.ProductionMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("hardened defaults should validate: %v", err)
	}
}

func TestCloneConfigDetachesKeys(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.PrivateKey = []byte("private")
	cfg.Session.PublicKey = []byte("public")

	clone := cloneConfig(cfg)
	clone.Session.PrivateKey[0] = 'X'
	clone.Session.PublicKey[0] = 'X'

	if cfg.Session.PrivateKey[0] != 'p' || cfg.Session.PublicKey[0] != 'p' {
		t.Fatal("clone shares key memory with the original")
	}
}

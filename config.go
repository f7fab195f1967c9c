package authkit

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable of the engine. Zero values are not usable;
// start from the defaults seeded by New and override what you need.
type Config struct {
	// RedisPrefix namespaces every key the engine writes.
	RedisPrefix string

	Lockout  LockoutConfig
	Recovery RecoveryConfig
	Session  SessionConfig
	Password PasswordConfig
	Policy   PolicyConfig
	Profile  ProfileConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

// LockoutConfig governs the failed-login counter.
type LockoutConfig struct {
	// Threshold is the failure count that triggers a lockout.
	Threshold int
	// Window is the sliding decay of the failure counter.
	Window time.Duration
	// Duration is how long an account stays locked once the threshold is
	// crossed.
	Duration time.Duration
}

// RecoveryConfig governs single-use recovery tokens and the
// anti-enumeration delay on the password-reset surface.
type RecoveryConfig struct {
	ConfirmEmailTTL     time.Duration
	PasswordResetTTL    time.Duration
	EnumerationDelayMin time.Duration
	EnumerationDelayMax time.Duration
}

// SessionConfig governs the signed session tokens handed out on sign-in.
type SessionConfig struct {
	TTL           time.Duration
	RememberTTL   time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// PasswordConfig carries the Argon2id parameters and the local password
// policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

// PolicyConfig carries sign-in policy switches.
type PolicyConfig struct {
	// RequireConfirmedEmail blocks external sign-in on accounts whose
	// email is unconfirmed, unless the assertion carries a verified claim.
	RequireConfirmedEmail bool
}

// ProfileConfig governs the profile surface.
type ProfileConfig struct {
	MaxHashtags int
	// KeepConfirmedOnEmailChange preserves EmailConfirmed across an email
	// change. Off by default; a new address starts unverified.
	KeepConfirmedOnEmailChange bool
}

// AuditConfig governs the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig governs the in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig carries deployment-wide hardening switches.
type SecurityConfig struct {
	ProductionMode bool
}

func defaultConfig() Config {
	return Config{
		RedisPrefix: "authkit",
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
			Duration:  15 * time.Minute,
		},
		Recovery: RecoveryConfig{
			ConfirmEmailTTL:     24 * time.Hour,
			PasswordResetTTL:    time.Hour,
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			RememberTTL:   30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Profile: ProfileConfig{
			MaxHashtags: 32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RedisPrefix) == "" {
		return errors.New("RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.RedisPrefix, " \t\n") {
		return errors.New("RedisPrefix must not contain whitespace")
	}

	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout.Threshold must be >= 1")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout.Window must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Duration must be positive")
	}

	if c.Recovery.ConfirmEmailTTL <= 0 {
		return errors.New("Recovery.ConfirmEmailTTL must be positive")
	}
	if c.Recovery.PasswordResetTTL <= 0 {
		return errors.New("Recovery.PasswordResetTTL must be positive")
	}
	if c.Recovery.EnumerationDelayMin < 0 {
		return errors.New("Recovery.EnumerationDelayMin must not be negative")
	}
	if c.Recovery.EnumerationDelayMax < c.Recovery.EnumerationDelayMin {
		return errors.New("Recovery.EnumerationDelayMax must be >= EnumerationDelayMin")
	}
	if c.Recovery.EnumerationDelayMax > time.Second {
		return errors.New("Recovery.EnumerationDelayMax must be <= 1s")
	}

	if c.Session.TTL <= 0 {
		return errors.New("Session.TTL must be positive")
	}
	if c.Session.RememberTTL < c.Session.TTL {
		return errors.New("Session.RememberTTL must be >= Session.TTL")
	}
	switch c.Session.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("Session.SigningMethod must be ed25519 or hs256")
	}

	if c.Password.MinLength < 6 {
		return errors.New("Password.MinLength must be >= 6")
	}

	if c.Profile.MaxHashtags < 0 {
		return errors.New("Profile.MaxHashtags must not be negative")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("Audit.BufferSize must be >= 1 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Session.SigningMethod != "ed25519" {
			return errors.New("ProductionMode requires ed25519 session signing")
		}
		if !c.Audit.Enabled {
			return errors.New("ProductionMode requires audit to be enabled")
		}
		if c.Recovery.PasswordResetTTL > time.Hour {
			return errors.New("ProductionMode requires Recovery.PasswordResetTTL <= 1h")
		}
		if c.Recovery.EnumerationDelayMin <= 0 {
			return errors.New("ProductionMode requires a positive enumeration delay")
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package authkit

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tossapp/authkit/jwt"
	"github.com/tossapp/authkit/password"
)

var hashtagPattern = regexp.MustCompile(`^[\pL\pN_-]{2,64}$`)

// Builder assembles an Engine. A builder is single-use.
type Builder struct {
	config Config
	redis  *redis.Client

	directory UserDirectory
	mailer    EmailSender
	hasher    CredentialHasher
	auditSink AuditSink

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithEmailSender(m EmailSender) *Builder {
	b.mailer = m
	return b
}

// WithCredentialHasher overrides the default Argon2id hasher.
func (b *Builder) WithCredentialHasher(h CredentialHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every store and returns the
// engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}
	if b.mailer == nil {
		return nil, errors.New("email sender required")
	}

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		mailer:    b.mailer,
	}

	engine.lockouts = newLockoutTracker(b.redis, cfg.RedisPrefix, cfg.Lockout)
	engine.tokens = newRecoveryTokenStore(b.redis, cfg.RedisPrefix)
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewHasher(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	engine.hasher = hasher

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	jm, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.Session.TTL,
		RememberTTL:   cfg.Session.RememberTTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.sessions = jm

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("hashtag", func(fl validator.FieldLevel) bool {
		return hashtagPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	engine.validate = validate

	// Started last so a failed build never leaks the worker goroutine.
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	b.built = true

	return engine, nil
}

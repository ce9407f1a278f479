// Package credentials persists the gateway connection settings across
// restarts. Non-secret fields go to the plain store; the token and password
// only ever reach the secure store.
package credentials

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/liteclaw/clawsync/internal/kvstore"
	"github.com/liteclaw/clawsync/internal/state"
)

// Store keys.
const (
	PlainKey  = "clawsync.gateway.config"
	SecureKey = "clawsync.gateway.credentials"
)

// plainRecord is the plain-store payload. Token and Password are always
// written empty; older versions stored them here, so they are still read.
type plainRecord struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TLS       bool   `json:"tls"`
	Token     string `json:"token"`
	Password  string `json:"password"`
	SetupCode string `json:"setupCode"`
}

type secureRecord struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Persistence reads and writes the two store records. Write errors are
// logged, never returned.
type Persistence struct {
	plain    kvstore.Store
	secure   kvstore.Store
	logger   zerolog.Logger
	hydrated atomic.Bool
}

// New creates a Persistence over the given stores.
func New(plain, secure kvstore.Store, logger zerolog.Logger) *Persistence {
	return &Persistence{
		plain:  plain,
		secure: secure,
		logger: logger.With().Str("component", "credentials").Logger(),
	}
}

// Hydrated reports whether writes are enabled.
func (p *Persistence) Hydrated() bool {
	return p.hydrated.Load()
}

// MarkHydrated enables writes. Call it once the result of Hydrate has been
// applied.
func (p *Persistence) MarkHydrated() {
	p.hydrated.Store(true)
}

// Hydrate reads both records concurrently and merges them over base. Read
// failures are logged and treated as nothing to restore. The returned error
// is only ctx's error; callers must not apply the result in that case.
// Hydrate never enables writes itself.
func (p *Persistence) Hydrate(ctx context.Context, base state.GatewayConfig) (state.GatewayConfig, error) {
	var (
		plain  *plainRecord
		secure *secureRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var rec plainRecord
		if p.read(p.plain, PlainKey, &rec) {
			plain = &rec
		}
		return gctx.Err()
	})
	g.Go(func() error {
		var rec secureRecord
		if p.read(p.secure, SecureKey, &rec) {
			secure = &rec
		}
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return base, err
	}
	if err := ctx.Err(); err != nil {
		return base, err
	}
	return merge(base, plain, secure), nil
}

func (p *Persistence) read(store kvstore.Store, key string, into interface{}) bool {
	raw, ok, err := store.Get(key)
	if err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("failed to read persisted gateway settings")
		return false
	}
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("ignoring malformed persisted gateway settings")
		return false
	}
	return true
}

func merge(base state.GatewayConfig, plain *plainRecord, secure *secureRecord) state.GatewayConfig {
	out := base
	if plain != nil {
		if plain.Host != "" {
			out.Host = plain.Host
		}
		if plain.Port > 0 {
			out.Port = plain.Port
		}
		out.TLS = plain.TLS
		if plain.Token != "" {
			out.Token = plain.Token
		}
		if plain.Password != "" {
			out.Password = plain.Password
		}
	}
	if secure != nil {
		if secure.Token != "" {
			out.Token = secure.Token
		}
		if secure.Password != "" {
			out.Password = secure.Password
		}
	}
	return out
}

// Persist writes cfg: host, port and tls to the plain store, the secrets to
// the secure store. When both secrets are empty the secure record is deleted.
// Calls made before hydration completes are dropped so they cannot clobber
// settings that have not been restored yet.
func (p *Persistence) Persist(cfg state.GatewayConfig) {
	if !p.Hydrated() {
		p.logger.Debug().Msg("skipping settings write before hydration")
		return
	}

	plain, err := json.Marshal(plainRecord{Host: cfg.Host, Port: cfg.Port, TLS: cfg.TLS})
	if err == nil {
		err = p.plain.Set(PlainKey, string(plain))
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to persist gateway settings")
	}

	if !cfg.HasSecrets() {
		if err := p.secure.Delete(SecureKey); err != nil {
			p.logger.Warn().Err(err).Msg("failed to clear gateway credentials")
		}
		return
	}
	secret, err := json.Marshal(secureRecord{Token: cfg.Token, Password: cfg.Password})
	if err == nil {
		err = p.secure.Set(SecureKey, string(secret))
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to persist gateway credentials")
	}
}

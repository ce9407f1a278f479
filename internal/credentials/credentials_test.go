package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteclaw/clawsync/internal/kvstore"
	"github.com/liteclaw/clawsync/internal/state"
)

// failingStore fails every call.
type failingStore struct{ calls int }

func (f *failingStore) Get(string) (string, bool, error) {
	f.calls++
	return "", false, errors.New("keychain locked")
}
func (f *failingStore) Set(string, string) error { f.calls++; return errors.New("disk full") }
func (f *failingStore) Delete(string) error      { f.calls++; return errors.New("disk full") }

// recordingStore remembers writes and deletes.
type recordingStore struct {
	*kvstore.Memory
	sets    []string
	deletes []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: kvstore.NewMemory()}
}

func (r *recordingStore) Set(key, value string) error {
	r.sets = append(r.sets, key)
	return r.Memory.Set(key, value)
}

func (r *recordingStore) Delete(key string) error {
	r.deletes = append(r.deletes, key)
	return r.Memory.Delete(key)
}

func hydrated(t *testing.T, p *Persistence) {
	t.Helper()
	_, err := p.Hydrate(context.Background(), state.GatewayConfig{})
	require.NoError(t, err)
	p.MarkHydrated()
}

func TestSecretsRoundTrip(t *testing.T) {
	plain, secure := kvstore.NewMemory(), kvstore.NewMemory()
	p := New(plain, secure, zerolog.Nop())
	hydrated(t, p)

	p.Persist(state.GatewayConfig{Host: "gw.local", Port: 443, TLS: true, Token: "t", Password: "p", SetupCode: "abc"})

	raw, ok, err := plain.Get(PlainKey)
	require.NoError(t, err)
	require.True(t, ok)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "gw.local", rec["host"])
	assert.Equal(t, "", rec["token"])
	assert.Equal(t, "", rec["password"])
	assert.Equal(t, "", rec["setupCode"])
	assert.NotContains(t, raw, `"t"`)
	assert.NotContains(t, raw, `"p"`)

	raw, ok, err = secure.Get(SecureKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"token":"t","password":"p"}`, raw)

	restored, err := New(plain, secure, zerolog.Nop()).Hydrate(context.Background(), state.GatewayConfig{Host: "default", Port: 18789})
	require.NoError(t, err)
	assert.Equal(t, state.GatewayConfig{Host: "gw.local", Port: 443, TLS: true, Token: "t", Password: "p"}, restored)
}

func TestEmptySecretsDeleteSecureRecord(t *testing.T) {
	plain, secure := kvstore.NewMemory(), newRecordingStore()
	p := New(plain, secure, zerolog.Nop())
	hydrated(t, p)

	p.Persist(state.GatewayConfig{Host: "gw", Port: 1, Token: "t"})
	p.Persist(state.GatewayConfig{Host: "gw", Port: 1})

	assert.Equal(t, []string{SecureKey}, secure.sets)
	assert.Equal(t, []string{SecureKey}, secure.deletes)
	_, ok, _ := secure.Get(SecureKey)
	assert.False(t, ok)
}

func TestPersistBeforeHydrationIsSuppressed(t *testing.T) {
	plain, secure := newRecordingStore(), newRecordingStore()
	p := New(plain, secure, zerolog.Nop())

	p.Persist(state.GatewayConfig{Host: "gw", Token: "t"})

	assert.Empty(t, plain.sets)
	assert.Empty(t, secure.sets)
	assert.Empty(t, secure.deletes)
	assert.False(t, p.Hydrated())
}

func TestStoreFailuresDoNotPropagate(t *testing.T) {
	plain, secure := &failingStore{}, &failingStore{}
	p := New(plain, secure, zerolog.Nop())

	base := state.GatewayConfig{Host: "default", Port: 18789}
	got, err := p.Hydrate(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, base, got)
	assert.False(t, p.Hydrated(), "writes wait for the caller")
	p.MarkHydrated()

	assert.NotPanics(t, func() {
		p.Persist(state.GatewayConfig{Host: "gw", Token: "t"})
		p.Persist(state.GatewayConfig{Host: "gw"})
	})
	assert.Equal(t, 3, plain.calls)
	assert.Equal(t, 3, secure.calls)
}

func TestPartialReadFailure(t *testing.T) {
	plain := kvstore.NewMemory()
	require.NoError(t, plain.Set(PlainKey, `{"host":"gw","port":8443,"tls":true}`))
	p := New(plain, &failingStore{}, zerolog.Nop())

	got, err := p.Hydrate(context.Background(), state.GatewayConfig{})
	require.NoError(t, err)
	assert.Equal(t, state.GatewayConfig{Host: "gw", Port: 8443, TLS: true}, got)
}

func TestSecureStoreWinsOverLegacyPlainSecrets(t *testing.T) {
	plain, secure := kvstore.NewMemory(), kvstore.NewMemory()
	require.NoError(t, plain.Set(PlainKey, `{"host":"gw","port":1,"token":"legacy","password":"legacy-pw"}`))
	require.NoError(t, secure.Set(SecureKey, `{"token":"fresh"}`))

	got, err := New(plain, secure, zerolog.Nop()).Hydrate(context.Background(), state.GatewayConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Token)
	assert.Equal(t, "legacy-pw", got.Password)
}

func TestMalformedRecordIsIgnored(t *testing.T) {
	plain := kvstore.NewMemory()
	require.NoError(t, plain.Set(PlainKey, `{"host":`))

	got, err := New(plain, kvstore.NewMemory(), zerolog.Nop()).Hydrate(context.Background(), state.GatewayConfig{Host: "default"})
	require.NoError(t, err)
	assert.Equal(t, "default", got.Host)
}

func TestHydrateCancelled(t *testing.T) {
	plain := kvstore.NewMemory()
	require.NoError(t, plain.Set(PlainKey, `{"host":"gw"}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	secure := newRecordingStore()
	p := New(plain, secure, zerolog.Nop())
	got, err := p.Hydrate(ctx, state.GatewayConfig{Host: "default"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "default", got.Host)
	assert.False(t, p.Hydrated())

	p.Persist(state.GatewayConfig{Host: "default"})
	raw, _, _ := plain.Get(PlainKey)
	assert.JSONEq(t, `{"host":"gw"}`, raw)
	assert.Empty(t, secure.deletes)
}

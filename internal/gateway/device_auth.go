package gateway

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liteclaw/clawsync/internal/kvstore"
)

// IdentityKey is the secure-store key of the persisted device identity.
const IdentityKey = "clawsync.device.identity"

// DeviceIdentity represents a device key pair.
type DeviceIdentity struct {
	ID         string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

type storedIdentity struct {
	ID   string `json:"id"`
	Seed string `json:"seed"`
}

// GenerateDeviceIdentity generates a new Ed25519 key pair and device ID.
func GenerateDeviceIdentity() (*DeviceIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &DeviceIdentity{
		ID:         ComputeDeviceID(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// LoadOrCreateIdentity returns the identity stored under IdentityKey,
// generating and storing a new one when none exists. A stored identity that
// cannot be decoded is replaced.
func LoadOrCreateIdentity(store kvstore.Store) (*DeviceIdentity, error) {
	raw, ok, err := store.Get(IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("read device identity: %w", err)
	}
	if ok {
		if id, err := decodeIdentity(raw); err == nil {
			return id, nil
		}
	}

	id, err := GenerateDeviceIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate device identity: %w", err)
	}
	data, err := json.Marshal(storedIdentity{
		ID:   id.ID,
		Seed: base64.RawURLEncoding.EncodeToString(id.PrivateKey.Seed()),
	})
	if err != nil {
		return nil, err
	}
	if err := store.Set(IdentityKey, string(data)); err != nil {
		return nil, fmt.Errorf("store device identity: %w", err)
	}
	return id, nil
}

func decodeIdentity(raw string) (*DeviceIdentity, error) {
	var s storedIdentity
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	seed, err := base64.RawURLEncoding.DecodeString(s.Seed)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &DeviceIdentity{ID: ComputeDeviceID(pub), PublicKey: pub, PrivateKey: priv}, nil
}

// ComputeDeviceID calculates the SHA256 fingerprint of the raw public key.
func ComputeDeviceID(pubKey ed25519.PublicKey) string {
	hash := sha256.Sum256(pubKey)
	return hex.EncodeToString(hash[:])
}

// BuildDeviceAuthPayload constructs the payload string for signing.
// Format: version|deviceId|clientId|clientMode|role|scopes|signedAtMs|token(|nonce)
func BuildDeviceAuthPayload(deviceID, clientID, clientMode, role string, scopes []string, signedAtMs int64, token, nonce string) string {
	version := "v1"
	if nonce != "" {
		version = "v2"
	}

	parts := []string{
		version,
		deviceID,
		clientID,
		clientMode,
		role,
		strings.Join(scopes, ","),
		fmt.Sprintf("%d", signedAtMs),
		token,
	}
	if version == "v2" {
		parts = append(parts, nonce)
	}
	return strings.Join(parts, "|")
}

// SignDevicePayload signs the payload and returns a base64url signature.
func SignDevicePayload(privKey ed25519.PrivateKey, payload string) string {
	sig := ed25519.Sign(privKey, []byte(payload))
	return base64.RawURLEncoding.EncodeToString(sig)
}

// PublicKeyToBase64Url returns the base64url encoded raw public key.
func PublicKeyToBase64Url(pubKey ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pubKey)
}

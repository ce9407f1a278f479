// Package setupcode decodes gateway setup codes.
//
// A setup code is base64url-encoded JSON carrying either a gateway URL or a
// host/port/tls triple, plus optional credentials.
package setupcode

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/liteclaw/clawsync/internal/gateway"
)

// DefaultPort is used when a setup code names neither a port nor a TLS URL.
const DefaultPort = 18789

// ErrInvalid is returned for codes that cannot be decoded.
var ErrInvalid = errors.New("invalid setup code")

// Payload is a decoded setup code.
type Payload struct {
	Host     string
	Port     int
	TLS      bool
	Token    string
	Password string
}

type wire struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Decode parses code.
func Decode(code string) (Payload, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Payload{}, ErrInvalid
	}

	raw, err := decodeBase64(code)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	p := Payload{
		Host:     strings.TrimSpace(w.Host),
		Port:     w.Port,
		TLS:      w.TLS,
		Token:    strings.TrimSpace(w.Token),
		Password: strings.TrimSpace(w.Password),
	}
	if w.URL != "" {
		if err := p.applyURL(w.URL); err != nil {
			return Payload{}, err
		}
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if err := gateway.ValidateEndpoint(p.Host, p.Port); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

func (p *Payload) applyURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch u.Scheme {
	case "wss", "https":
		p.TLS = true
	case "ws", "http":
		p.TLS = false
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalid, u.Scheme)
	}
	p.Host = u.Hostname()
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		p.Port = n
	} else if p.TLS {
		p.Port = 443
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

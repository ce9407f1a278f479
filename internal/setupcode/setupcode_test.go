package setupcode

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Payload
	}{
		{
			name: "url with tls",
			json: `{"url":"wss://gw.example.com","token":"tok"}`,
			want: Payload{Host: "gw.example.com", Port: 443, TLS: true, Token: "tok"},
		},
		{
			name: "url with port",
			json: `{"url":"ws://192.168.1.20:18789","password":"pw"}`,
			want: Payload{Host: "192.168.1.20", Port: 18789, Password: "pw"},
		},
		{
			name: "host fields",
			json: `{"host":"gateway.local","port":9000,"tls":true}`,
			want: Payload{Host: "gateway.local", Port: 9000, TLS: true},
		},
		{
			name: "default port",
			json: `{"host":"gateway.local"}`,
			want: Payload{Host: "gateway.local", Port: DefaultPort},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(encode(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAcceptsPaddedStandardEncoding(t *testing.T) {
	code := base64.StdEncoding.EncodeToString([]byte(`{"host":"gateway.local","port":1}`))
	got, err := Decode("  " + code + "\n")
	require.NoError(t, err)
	assert.Equal(t, "gateway.local", got.Host)
}

func TestDecodeInvalid(t *testing.T) {
	for _, code := range []string{
		"",
		"!!!not-base64!!!",
		encode(`not json`),
		encode(`{"url":"ftp://gw"}`),
		encode(`{}`),
		encode(`{"host":"gw","port":99999}`),
	} {
		_, err := Decode(code)
		assert.ErrorIs(t, err, ErrInvalid, code)
	}
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProtocol(t *testing.T) {
	cases := []struct {
		link   string
		want   string
		prefix int
	}{
		{"vmess://eyJhZGQiOiIxLjEuMS4xIn0=", Vmess, 8},
		{"VLESS://uuid@host:443", Vless, 8},
		{"ss://YWVzOnBhc3M=@1.2.3.4:8388", ShadowSocks, 5},
		{"ssr://abc", ShadowSocksR, 6},
		{"wireguard://key@host:51820", WireGuard, 12},
		{"wg://key@host:51820", WireGuard, 5},
		{"hysteria2://pass@host:443", Hysteria2, 12},
		{"hy2://pass@host:443", Hysteria2, 6},
	}
	for _, c := range cases {
		p, n, ok := DetectProtocol(c.link)
		require.True(t, ok, c.link)
		assert.Equal(t, c.want, p.Name, c.link)
		assert.Equal(t, c.prefix, n, c.link)
	}

	_, _, ok := DetectProtocol("http://example.com")
	assert.False(t, ok)
}

func TestProtocolsOrderIsFixed(t *testing.T) {
	names := make([]string, 0)
	for _, p := range Protocols() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{Vmess, Vless, Trojan, ShadowSocks, ShadowSocksR, WireGuard, Tuic, Hysteria2}, names)

	// 返回的是副本
	ps := Protocols()
	ps[0].Name = "changed"
	p, ok := LookupProtocol(Vmess)
	require.True(t, ok)
	assert.Equal(t, Vmess, p.Name)
}

func TestHasPrefix(t *testing.T) {
	p, _ := LookupProtocol(Hysteria2)
	assert.True(t, p.HasPrefix("HY2://x"))
	assert.True(t, p.HasPrefix("hysteria2://x"))
	assert.False(t, p.HasPrefix("tuic://x"))
}

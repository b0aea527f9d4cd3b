package validator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v2scrape/collector/classifier"
	"v2scrape/collector/model"
	"v2scrape/internal/shared/types"
)

func listen(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestValidateReachability(t *testing.T) {
	port := listen(t)
	cfgs := []*model.ProxyConfig{
		{Link: fmt.Sprintf("trojan://pw@127.0.0.1:%d#up", port), Protocol: model.Trojan},
		{Link: "trojan://pw@127.0.0.1#noport", Protocol: model.Trojan},
		{Link: "vless://id@10.255.255.1:443#down", Protocol: model.Vless},
	}

	v := NewValidator(types.ProbeConf{TimeoutSeconds: 1, Concurrency: 2}, nil)
	v.SetDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addr == "10.255.255.1:443" {
			return nil, errors.New("unreachable")
		}
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	})

	out := v.Validate(context.Background(), cfgs)
	require.Len(t, out, 3)
	assert.True(t, out[0].Reachable)
	assert.Equal(t, "127.0.0.1", out[0].Host)
	assert.Equal(t, port, out[0].Port)
	assert.Positive(t, out[0].Latency)
	assert.False(t, out[1].Reachable)
	assert.False(t, out[2].Reachable)
	assert.Equal(t, "10.255.255.1", out[2].Host)

	v.dropUnreachable = true
	out = v.Validate(context.Background(), cfgs)
	require.Len(t, out, 1)
	assert.Equal(t, cfgs[0].Link, out[0].Link)
}

func TestValidateGeoFallback(t *testing.T) {
	var hits atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/json/127.0.0.1" {
			fmt.Fprint(w, `{"status":"success","country":"Japan","countryCode":"JP"}`)
			return
		}
		fmt.Fprint(w, `{"status":"fail"}`)
	}))
	defer geo.Close()

	port := listen(t)
	cls := classifier.New([]types.Category{{Name: "Japan", Values: []string{"JP", "日本"}}})
	v := NewValidator(types.ProbeConf{
		TimeoutSeconds: 1,
		Concurrency:    1,
		GeoLookup:      true,
		GeoAPI:         geo.URL + "/json/%s",
	}, cls)

	link := func(name string) string {
		return "trojan://pw@" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "#" + name
	}
	cfgs := []*model.ProxyConfig{
		{Link: link("a")},
		{Link: link("b")},
		{Link: link("c"), Countries: []string{"Germany"}},
	}

	out := v.Validate(context.Background(), cfgs)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"Japan"}, out[0].Countries)
	assert.Equal(t, []string{"Japan"}, out[1].Countries)
	assert.Equal(t, []string{"Germany"}, out[2].Countries)
	// 同一个 IP 只查询一次
	assert.EqualValues(t, 1, hits.Load())
}

func TestValidateEmpty(t *testing.T) {
	v := NewValidator(types.ProbeConf{}, nil)
	assert.Empty(t, v.Validate(context.Background(), nil))
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v2scrape/internal/shared/types"
)

func TestExtractText(t *testing.T) {
	htmlPre := `<html><body><p>ignored vmess://nope</p><pre><code>vmess://a</code></pre><code>trojan://b@c:1</code></body></html>`
	assert.Equal(t, "vmess://a\ntrojan://b@c:1", ExtractText("text/html; charset=utf-8", []byte(htmlPre)))

	htmlPlain := `<html><body><div> vless://x@y:1 </div><script>var s = "ss://z";</script><p>tail</p></body></html>`
	assert.Equal(t, "vless://x@y:1\nvar s = \"ss://z\";\ntail", ExtractText("text/html", []byte(htmlPlain)))

	js := `{"links":["vless://u@h:1?a=1&b=2#<x>"],"n":12345678901234567890}`
	assert.Equal(t, js, ExtractText("application/json", []byte(js)))

	broken := `{"links": [`
	assert.Equal(t, broken, ExtractText("application/json", []byte(broken)))

	raw := "<pre>not parsed</pre>\nss://abc"
	assert.Equal(t, raw, ExtractText("text/plain; charset=utf-8", []byte(raw)))

	// 没有 Content-Type 时按内容嗅探
	assert.Equal(t, "x", ExtractText("", []byte("<!DOCTYPE html><html><body><pre>x</pre></body></html>")))
}

func newTestFetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	f, err := NewFetcher(opts)
	require.NoError(t, err)
	f.backoff = func(int) time.Duration { return 0 }
	return f
}

func TestFetcherRetriesAndStatuses(t *testing.T) {
	var flaky, broken, notFound atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><pre>vmess://abc</pre></body></html>")
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flaky.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "ok text")
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		broken.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/notfound", func(w http.ResponseWriter, r *http.Request) {
		notFound.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "not found "+strings.Repeat("x", 2000))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		body := strings.Repeat("a", 16384)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, Options{Timeout: 5 * time.Second, MaxRetries: 2, MaxPageSize: 8192})
	ctx := context.Background()

	content, err := f.Fetch(ctx, srv.URL+"/html")
	require.NoError(t, err)
	assert.Equal(t, "vmess://abc", content)

	content, err = f.Fetch(ctx, srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok text", content)
	assert.EqualValues(t, 2, flaky.Load())

	_, err = f.Fetch(ctx, srv.URL+"/broken")
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.EqualValues(t, 3, broken.Load(), "one attempt plus two retries")

	content, err = f.Fetch(ctx, srv.URL+"/notfound")
	require.NoError(t, err)
	assert.Len(t, []rune(content), errorBodyLength)
	assert.True(t, strings.HasPrefix(content, "not found "))
	assert.EqualValues(t, 1, notFound.Load())

	_, err = f.Fetch(ctx, srv.URL+"/big")
	assert.ErrorIs(t, err, ErrPageTooLarge)
}

func TestFetcherRejectsBadUpstream(t *testing.T) {
	_, err := NewFetcher(Options{UpstreamProxy: "ftp://example.com:21"})
	assert.Error(t, err)

	_, err = NewFetcher(Options{UpstreamProxy: "socks5://127.0.0.1:1080"})
	assert.NoError(t, err)
}

func TestDefaultBackoffIsCapped(t *testing.T) {
	assert.GreaterOrEqual(t, defaultBackoff(0), time.Second)
	assert.Less(t, defaultBackoff(0), 2*time.Second)
	assert.Equal(t, maxBackoff, defaultBackoff(10))
}

// mockFetcher 记录调用并按 URL 返回预设结果
type mockFetcher struct {
	mu       sync.Mutex
	calls    []string
	inflight atomic.Int32
	peak     atomic.Int32
	fail     map[string]bool
}

func (m *mockFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	m.calls = append(m.calls, pageURL)
	m.mu.Unlock()

	if m.fail[pageURL] {
		return "", errors.New("boom")
	}
	return "content of " + pageURL, nil
}

func TestSourceScraperKeepsOrderAndBoundsConcurrency(t *testing.T) {
	var urls []string
	for i := 0; i < 30; i++ {
		urls = append(urls, fmt.Sprintf("https://example.com/%d", i))
	}
	m := &mockFetcher{fail: map[string]bool{urls[3]: true}}
	s := NewSourceScraper(urls, m, types.FetchConf{Concurrency: 10, BatchDelayMs: 1})

	assert.Equal(t, 5, s.concurrency)
	assert.Equal(t, 6, s.batchSize)

	pages, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, len(urls))
	for i, p := range pages {
		assert.Equal(t, urls[i], p.URL)
	}
	assert.Error(t, pages[3].Err)
	assert.Equal(t, "content of "+urls[4], pages[4].Content)
	assert.LessOrEqual(t, m.peak.Load(), int32(5))
	assert.Len(t, m.calls, len(urls))
}

func TestSourceScraperStopsOnCancel(t *testing.T) {
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	m := &mockFetcher{}
	s := NewSourceScraper(urls, m, types.FetchConf{Concurrency: 10, BatchDelayMs: 10000})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	pages, err := s.Scrape(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, pages, 5, "only the first batch completes")
}

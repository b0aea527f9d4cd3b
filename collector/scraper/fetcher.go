package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/proxy"

	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

const (
	maxBackoff      = 10 * time.Second
	errorBodyLength = 1000 // 非 2xx 响应最多保留的字符数
)

var (
	ErrPageTooLarge = errors.New("page exceeds size limit")
	ErrBadStatus    = errors.New("unexpected status code")
)

// Options 控制单个页面的抓取行为。
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	MaxPageSize   int
	UserAgent     string
	UpstreamProxy string
	Parallelism   int // 每个主机的最大并发
}

func OptionsFrom(c types.FetchConf) Options {
	return Options{
		Timeout:       time.Duration(c.TimeoutSeconds) * time.Second,
		MaxRetries:    c.MaxRetries,
		MaxPageSize:   c.MaxPageSize,
		UserAgent:     c.UserAgent,
		UpstreamProxy: c.UpstreamProxy,
		Parallelism:   min(5, max(1, c.Concurrency/2)),
	}
}

// Fetcher 基于 colly 抓取单个页面，带重试和退避。
// 每次请求都从 base 克隆一个 collector，共享底层的 HTTP 客户端和限流规则。
type Fetcher struct {
	base    *colly.Collector
	opts    Options
	backoff func(attempt int) time.Duration
}

// NewFetcher 创建一个新的 Fetcher 实例。
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = types.DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	collectorOpts := []colly.CollectorOption{
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if opts.MaxPageSize > 0 {
		collectorOpts = append(collectorOpts, colly.MaxBodySize(opts.MaxPageSize))
	}
	c := colly.NewCollector(collectorOpts...)
	c.SetRequestTimeout(opts.Timeout)

	if opts.UpstreamProxy != "" {
		tr, err := upstreamTransport(opts.UpstreamProxy)
		if err != nil {
			return nil, err
		}
		c.WithTransport(tr)
	}

	if opts.Parallelism > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: opts.Parallelism}); err != nil {
			return nil, fmt.Errorf("failed to set limit rule: %w", err)
		}
	}

	return &Fetcher{base: c, opts: opts, backoff: defaultBackoff}, nil
}

// upstreamTransport 为 socks5:// 或 http(s):// 上游代理构建 Transport。
func upstreamTransport(raw string) (*http.Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream proxy %q: %w", raw, err)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
		}
		tr.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported upstream proxy scheme %q", u.Scheme)
	}
	return tr, nil
}

// defaultBackoff 返回 min(2^attempt + jitter, 10s)。
func defaultBackoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))*float64(time.Second)) + time.Duration(rand.Float64()*float64(time.Second))
	return min(d, maxBackoff)
}

// Fetch 抓取一个页面并返回提取后的文本。
// 网络错误和没有内容的非 2xx 响应会重试，超过大小限制的页面不会重试。
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	l := logger.WithComponent("Collector/Fetcher")

	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff(attempt - 1)
			l.Debug().Str("url", pageURL).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying page fetch.")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		content, retry, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("fetch %s: %w", pageURL, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (string, bool, error) {
	c := f.base.Clone()
	c.Context = ctx

	var (
		content   string
		fetchErr  error
		oversized bool
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	c.OnResponseHeaders(func(r *colly.Response) {
		if f.opts.MaxPageSize <= 0 {
			return
		}
		if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil && n > int64(f.opts.MaxPageSize) {
			oversized = true
			r.Request.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			body := truncateRunes(string(r.Body), errorBodyLength)
			if strings.TrimSpace(body) != "" {
				content = body
				return
			}
			fetchErr = fmt.Errorf("%w: %d", ErrBadStatus, r.StatusCode)
			return
		}
		content = ExtractText(r.Headers.Get("Content-Type"), r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		if fetchErr == nil {
			fetchErr = err
		}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if oversized {
		return "", false, fmt.Errorf("%w (%d bytes)", ErrPageTooLarge, f.opts.MaxPageSize)
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if fetchErr != nil {
		return "", true, fetchErr
	}
	return content, false, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

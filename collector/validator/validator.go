package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"v2scrape/collector/classifier"
	"v2scrape/collector/model"
	"v2scrape/collector/parser"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

const geoAPITimeout = 5 * time.Second

// geoAPIResponse 对应 ip-api.com 的 JSON 响应
type geoAPIResponse struct {
	Status      string `json:"status"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// DialFunc 与 net.Dialer.DialContext 签名一致，测试中可以替换。
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Validator 对配置的服务器地址做 TCP 可达性探测，并可以通过 geo API 为没有匹配到国家的配置补充国家。
type Validator struct {
	timeout         time.Duration
	concurrency     int
	dropUnreachable bool
	geoLookup       bool
	geoAPI          string

	geoClient  *http.Client
	classifier *classifier.Classifier
	dial       DialFunc

	mu       sync.Mutex
	geoCache map[string]string // ip -> 国家类别名称，空字符串表示查询过但没有结果
}

func NewValidator(cfg types.ProbeConf, cls *classifier.Classifier) *Validator {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &Validator{
		timeout:         timeout,
		concurrency:     concurrency,
		dropUnreachable: cfg.DropUnreachable,
		geoLookup:       cfg.GeoLookup && cfg.GeoAPI != "" && cls != nil,
		geoAPI:          cfg.GeoAPI,
		geoClient:       &http.Client{Timeout: geoAPITimeout},
		classifier:      cls,
		dial:            dialer.DialContext,
		geoCache:        make(map[string]string),
	}
}

// SetDialer 替换探测使用的拨号函数
func (v *Validator) SetDialer(dial DialFunc) {
	v.dial = dial
}

// Validate 并发探测所有配置。返回值保持输入顺序；
// 开启 drop_unreachable 时不可达的配置会被剔除。
func (v *Validator) Validate(ctx context.Context, configs []*model.ProxyConfig) []*model.ProxyConfig {
	l := logger.WithComponent("Collector/Validator")
	if len(configs) == 0 {
		return configs
	}

	l.Info().Int("count", len(configs)).Int("concurrency", v.concurrency).Msg("Starting probe batch...")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.concurrency)

	for _, c := range configs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cfg *model.ProxyConfig) {
			defer wg.Done()
			defer func() { <-semaphore }()

			v.validateSingle(ctx, cfg)
		}(c)
	}
	wg.Wait()

	reachable := 0
	kept := make([]*model.ProxyConfig, 0, len(configs))
	for _, c := range configs {
		if c.Reachable {
			reachable++
		} else if v.dropUnreachable {
			continue
		}
		kept = append(kept, c)
	}

	l.Info().
		Int("reachable", reachable).
		Int("unreachable", len(configs)-reachable).
		Int("kept", len(kept)).
		Msg("Probe batch finished.")
	return kept
}

func (v *Validator) validateSingle(ctx context.Context, c *model.ProxyConfig) {
	c.Reachable = false
	c.Latency = 0

	host, port, err := parser.Endpoint(c.Link)
	if err != nil {
		return
	}
	c.Host, c.Port = host, port

	dialCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	conn, err := v.dial(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return
	}
	_ = conn.Close()

	c.Reachable = true
	c.Latency = time.Since(start)

	if v.geoLookup && len(c.Countries) == 0 && net.ParseIP(host) != nil {
		if country := v.lookupCountry(ctx, host); country != "" {
			c.Countries = []string{country}
		}
	}
}

// lookupCountry 通过 geo API 查询 IP 所属国家，并映射到 keywords 中的国家类别。结果按 IP 缓存。
func (v *Validator) lookupCountry(ctx context.Context, ip string) string {
	v.mu.Lock()
	if country, ok := v.geoCache[ip]; ok {
		v.mu.Unlock()
		return country
	}
	v.mu.Unlock()

	country := ""
	if code := v.fetchCountryCode(ctx, ip); code != "" {
		country, _ = v.classifier.ByISO(code)
	}

	v.mu.Lock()
	v.geoCache[ip] = country
	v.mu.Unlock()
	return country
}

func (v *Validator) fetchCountryCode(ctx context.Context, ip string) string {
	l := logger.WithComponent("Collector/Validator")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(v.geoAPI, ip), nil)
	if err != nil {
		l.Warn().Err(err).Msg("Invalid geo API URL.")
		return ""
	}
	resp, err := v.geoClient.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("ip", ip).Msg("Geo API request failed.")
		return ""
	}
	defer resp.Body.Close()

	var apiResp geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		l.Warn().Err(err).Str("ip", ip).Msg("Failed to decode Geo API response.")
		return ""
	}
	if apiResp.Status != "success" {
		l.Debug().Str("ip", ip).Str("status", apiResp.Status).Msg("Geo API returned non-success status.")
		return ""
	}
	return apiResp.CountryCode
}

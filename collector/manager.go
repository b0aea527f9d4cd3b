package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"v2scrape/collector/classifier"
	"v2scrape/collector/model"
	"v2scrape/collector/parser"
	"v2scrape/collector/report"
	"v2scrape/collector/scraper"
	"v2scrape/collector/storage"
	"v2scrape/collector/validator"
	"v2scrape/internal/metrics"
	"v2scrape/internal/shared/config"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

// ErrRunInProgress 表示已有一次运行正在进行
var ErrRunInProgress = errors.New("a run is already in progress")

// Status 是 Manager 对外暴露的状态快照
type Status struct {
	Running   bool             `json:"running"`
	LastRun   *model.RunResult `json:"last_run,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// Manager 是采集模块的总控制器: 一次 Run 完成 "抓取 -> 解析 -> 过滤 -> 分类 -> 输出" 的完整周期。
type Manager struct {
	cfg     *types.Config
	fetcher scraper.PageFetcher
	storage *storage.FileStorage
	sinks   []storage.Sink
	now     func() time.Time

	runMu sync.Mutex // 同一时间只允许一次运行

	mu        sync.RWMutex
	running   bool
	last      *model.RunResult
	lastErr   error
	listeners []func(*model.RunResult, error)

	trigger chan struct{}
}

// NewManager 创建并初始化采集管理器。
func NewManager(cfg *types.Config, fetcher scraper.PageFetcher) *Manager {
	return &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		storage: storage.NewFileStorage(cfg.OutputDir),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// AddSink 添加一个二级输出。
func (m *Manager) AddSink(s storage.Sink) {
	m.sinks = append(m.sinks, s)
}

// OnRunFinished 注册运行结束时的回调 (成功或失败都会调用)。
func (m *Manager) OnRunFinished(fn func(*model.RunResult, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status 返回当前状态
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{Running: m.running, LastRun: m.last}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Close 关闭所有 sink
func (m *Manager) Close(ctx context.Context) {
	l := logger.WithComponent("Collector/Manager")
	for _, s := range m.sinks {
		if err := s.Close(ctx); err != nil {
			l.Warn().Err(err).Str("sink", s.Name()).Msg("Failed to close sink.")
		}
	}
}

// TriggerRun 请求调度循环尽快执行一次运行。已有待执行的请求时返回 false。
func (m *Manager) TriggerRun() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Serve 是 daemon 模式的调度循环: 启动时立即运行一次，之后每隔 interval 运行一次。
// 所有运行都在这个 goroutine 中串行执行，ctx 取消时返回。
func (m *Manager) Serve(ctx context.Context, interval time.Duration) error {
	l := logger.WithComponent("Collector/Manager")
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.Info().Dur("interval", interval).Msg("Scheduler started.")
	m.runLogged(ctx)

	for {
		select {
		case <-ticker.C:
			l.Info().Msg("Run ticker triggered.")
			m.runLogged(ctx)

		case <-m.trigger:
			l.Info().Msg("Run requested.")
			m.runLogged(ctx)
			ticker.Reset(interval)

		case <-ctx.Done():
			l.Info().Msg("Stop signal received. Shutting down scheduler.")
			return nil
		}
	}
}

func (m *Manager) runLogged(ctx context.Context) {
	if _, err := m.Run(ctx); err != nil && ctx.Err() == nil {
		l := logger.WithComponent("Collector/Manager")
		l.Error().Err(err).Msg("Run failed.")
	}
}

// Run 执行一次完整的采集。输入文件在每次运行时重新读取。
func (m *Manager) Run(ctx context.Context) (*model.RunResult, error) {
	if !m.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer m.runMu.Unlock()

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	res, err := m.run(ctx)

	m.mu.Lock()
	m.running = false
	m.lastErr = err
	if err == nil {
		m.last = res
	}
	listeners := append([]func(*model.RunResult, error){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(res, err)
	}
	return res, err
}

// collected 是页面处理阶段的中间结果
type collected struct {
	configs  []*model.ProxyConfig
	fetched  int
	failed   int
	filtered int
}

func (m *Manager) run(ctx context.Context) (*model.RunResult, error) {
	start := m.now()
	runID := uuid.NewString()
	l := logger.WithComponent("Collector/Manager").With().Str("run_id", runID).Logger()
	l.Info().Msg("Starting new collection run...")

	urls, err := config.LoadSources(m.cfg.URLsFile)
	if err != nil {
		metrics.IncRunFailure("inputs")
		return nil, err
	}
	keywords, err := config.LoadKeywords(m.cfg.KeywordsFile)
	if err != nil {
		metrics.IncRunFailure("inputs")
		return nil, err
	}
	extractor := parser.NewExtractor(keywords)
	cls := classifier.New(keywords.Countries)

	src := scraper.NewSourceScraper(urls, m.fetcher, m.cfg.FetchConf)
	pages, err := src.Scrape(ctx)
	if err != nil {
		metrics.IncRunFailure("fetch")
		return nil, fmt.Errorf("scraper %s interrupted: %w", src.Name(), err)
	}

	c := m.collect(pages, extractor, cls)
	logMemory(l)

	if m.cfg.ProbeConf.Enabled {
		v := validator.NewValidator(m.cfg.ProbeConf, cls)
		c.configs = v.Validate(ctx, c.configs)
		reachable := 0
		for _, cfg := range c.configs {
			if cfg.Reachable {
				reachable++
			}
		}
		metrics.RecordReachable(reachable)
	}

	byProtocol, byCountry := group(c.configs)
	files, err := m.save(byProtocol, byCountry, cls)
	if err != nil {
		metrics.IncRunFailure("storage")
		return nil, err
	}

	linker := report.NewLinker(m.cfg.ReadmeFile, m.storage, m.cfg.LinkBase)
	res := &model.RunResult{
		Protocols:  report.ProtocolEntries(byProtocol, linker),
		Countries:  report.CountryEntries(byCountry, cls, linker),
		ByProtocol: byProtocol,
		ByCountry:  byCountry,
		Configs:    c.configs,
	}
	res.Record = model.RunRecord{
		ID:                runID,
		Timestamp:         start.UTC(),
		TotalConfigs:      len(c.configs),
		ProtocolsWithData: len(res.Protocols),
		CountriesWithData: len(res.Countries),
		PagesFetched:      c.fetched,
		PagesFailed:       c.failed,
		Filtered:          c.filtered,
	}
	for _, e := range res.Countries {
		res.Record.CountryConfigs += e.Count
	}

	if m.cfg.ReadmeConf.Enabled {
		now := m.now().In(report.Location(m.cfg.Timezone))
		if err := report.Write(m.cfg.ReadmeFile, report.Render(res, now)); err != nil {
			metrics.IncRunFailure("readme")
			return nil, err
		}
		files = append(files, m.cfg.ReadmeFile)
		l.Info().Str("path", m.cfg.ReadmeFile).Msg("README updated.")
	}

	res.Record.Duration = m.now().Sub(start)

	// sink 失败不影响本次运行的结果，本地文件已经写好
	for _, s := range m.sinks {
		if err := s.Publish(ctx, res, files); err != nil {
			metrics.IncRunFailure("sink")
			l.Error().Err(err).Str("sink", s.Name()).Msg("Failed to publish run.")
		}
	}

	m.recordMetrics(res)

	l.Info().
		Int("total", res.Record.TotalConfigs).
		Int("protocols", res.Record.ProtocolsWithData).
		Int("countries", res.Record.CountriesWithData).
		Int("filtered", res.Record.Filtered).
		Dur("duration", res.Record.Duration).
		Msg("Collection run finished.")
	return res, nil
}

// collect 按源的顺序处理页面: 提取、全局去重、过滤、提取名称、匹配国家。
// 已接受的配置数达到 max_total_configs 后不再处理后续页面。
func (m *Manager) collect(pages []*model.Page, extractor *parser.Extractor, cls *classifier.Classifier) collected {
	l := logger.WithComponent("Collector/Manager")
	rules := parser.RulesFrom(m.cfg.FilterConf)
	limit := m.cfg.MaxTotalConfigs

	var c collected
	seen := make(map[string]struct{})

	for i, page := range pages {
		if page.Err != nil {
			c.failed++
			metrics.IncPageFetched(metrics.OutcomeFailure)
			continue
		}
		metrics.IncPageFetched(metrics.OutcomeSuccess)
		c.fetched++

		if limit > 0 && len(c.configs) >= limit {
			l.Warn().Int("limit", limit).Msg("Max total configs reached, skipping remaining pages.")
			break
		}

		groups := extractor.Extract(parser.ExpandSubscription(page.Content))
		pageFound, pageFiltered := 0, 0
		for _, p := range model.Protocols() {
			for _, link := range groups[p.Name] {
				if _, dup := seen[link]; dup {
					continue
				}
				if drop, reason := parser.ShouldFilter(link, rules); drop {
					metrics.IncFiltered(reason)
					pageFiltered++
					continue
				}
				seen[link] = struct{}{}

				name := parser.Name(link)
				c.configs = append(c.configs, &model.ProxyConfig{
					Link:      link,
					Protocol:  p.Name,
					Name:      name,
					Source:    page.URL,
					Countries: cls.Match(name),
				})
				pageFound++
			}
		}
		c.filtered += pageFiltered

		if (i+1)%10 == 0 || i == len(pages)-1 {
			l.Info().
				Int("page", i+1).
				Int("pages", len(pages)).
				Int("found", len(c.configs)).
				Int("filtered", c.filtered).
				Msg("Processing progress.")
		} else {
			l.Debug().Str("url", page.URL).Int("found", pageFound).Int("filtered", pageFiltered).Msg("Page processed.")
		}
	}
	return c
}

func group(configs []*model.ProxyConfig) (map[string][]string, map[string][]string) {
	byProtocol := make(map[string][]string)
	byCountry := make(map[string][]string)
	for _, c := range configs {
		byProtocol[c.Protocol] = append(byProtocol[c.Protocol], c.Link)
		for _, country := range c.Countries {
			byCountry[country] = append(byCountry[country], c.Link)
		}
	}
	return byProtocol, byCountry
}

// save 重建输出目录并写入所有非空的协议和国家文件，返回写入的文件路径。
func (m *Manager) save(byProtocol, byCountry map[string][]string, cls *classifier.Classifier) ([]string, error) {
	l := logger.WithComponent("Collector/Manager")
	if err := m.storage.Reset(); err != nil {
		return nil, err
	}

	var files []string
	for _, p := range model.Protocols() {
		path, n, err := m.storage.Save(m.storage.ProtocolDir(), p.Name, byProtocol[p.Name])
		if err != nil {
			return files, err
		}
		if path != "" {
			files = append(files, path)
			l.Debug().Str("protocol", p.Name).Int("count", n).Msg("Protocol file saved.")
		}
	}

	countries := 0
	for _, name := range cls.Countries() {
		path, _, err := m.storage.Save(m.storage.CountryDir(), name, byCountry[name])
		if err != nil {
			return files, err
		}
		if path != "" {
			files = append(files, path)
			countries++
		}
	}
	l.Info().Int("files", len(files)).Int("countries", countries).Str("root", m.storage.Root()).Msg("Output files saved.")
	return files, nil
}

func (m *Manager) recordMetrics(res *model.RunResult) {
	l := logger.WithComponent("Collector/Manager")

	byProtocol := make(map[string]int, len(res.Protocols))
	for _, e := range res.Protocols {
		byProtocol[e.Name] = e.Count
	}
	byCountry := make(map[string]int, len(res.Countries))
	for _, e := range res.Countries {
		byCountry[e.Name] = e.Count
	}
	metrics.RecordAccepted(byProtocol)
	metrics.RecordCountries(byCountry)
	metrics.RecordRun(res.Record.Duration, res.Record.Timestamp.Add(res.Record.Duration))

	if err := metrics.WriteTextfile(m.cfg.TextfilePath); err != nil {
		l.Warn().Err(err).Msg("Failed to export metrics textfile.")
	}
}

func logMemory(l zerolog.Logger) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	l.Debug().
		Uint64("heap_alloc_mb", ms.HeapAlloc/1024/1024).
		Uint64("sys_mb", ms.Sys/1024/1024).
		Msg("Memory usage after processing.")
}

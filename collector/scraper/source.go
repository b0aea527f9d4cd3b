package scraper

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

// SourceScraper 实现了 Scraper 接口，分批抓取 urls.txt 中的所有订阅源。
type SourceScraper struct {
	urls        []string
	fetcher     PageFetcher
	concurrency int
	batchSize   int
	batchDelay  time.Duration
}

// NewSourceScraper 根据源的数量计算并发度和批次大小:
// 并发 = min(concurrency, max(5, n/10))，批次 = min(20, max(5, n/5))。
func NewSourceScraper(urls []string, fetcher PageFetcher, cfg types.FetchConf) *SourceScraper {
	n := len(urls)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return &SourceScraper{
		urls:        urls,
		fetcher:     fetcher,
		concurrency: min(concurrency, max(5, n/10)),
		batchSize:   min(20, max(5, n/5)),
		batchDelay:  time.Duration(cfg.BatchDelayMs) * time.Millisecond,
	}
}

// Name 返回抓取器的名称。
func (s *SourceScraper) Name() string {
	return "sources"
}

// Scrape 执行抓取操作。单个源失败只记录日志，不会中断整个过程；
// 只有 ctx 被取消时才返回错误 (同时返回已完成批次的结果)。
func (s *SourceScraper) Scrape(ctx context.Context) ([]*model.Page, error) {
	l := logger.WithComponent("Collector/Scraper")
	l.Info().
		Int("sources", len(s.urls)).
		Int("concurrency", s.concurrency).
		Int("batch_size", s.batchSize).
		Msg("Starting scrape...")

	pages := make([]*model.Page, 0, len(s.urls))
	for start := 0; start < len(s.urls); start += s.batchSize {
		if start > 0 && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return pages, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		end := min(start+s.batchSize, len(s.urls))
		batch := s.urls[start:end]
		results := make([]*model.Page, len(batch))

		g := new(errgroup.Group)
		g.SetLimit(s.concurrency)
		for i, u := range batch {
			g.Go(func() error {
				content, err := s.fetcher.Fetch(ctx, u)
				if err == nil && strings.TrimSpace(content) == "" {
					l.Debug().Str("url", u).Msg("Page is empty.")
				}
				if err != nil {
					l.Warn().Err(err).Str("url", u).Msg("Failed to fetch source.")
				}
				results[i] = &model.Page{URL: u, Content: content, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		pages = append(pages, results...)

		l.Debug().Int("done", end).Int("total", len(s.urls)).Msg("Batch finished.")
	}

	ok := 0
	for _, p := range pages {
		if p.Err == nil {
			ok++
		}
	}
	l.Info().Int("fetched", ok).Int("failed", len(pages)-ok).Msg("Scrape finished.")
	return pages, nil
}

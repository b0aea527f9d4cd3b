package scraper

import (
	"context"

	"v2scrape/collector/model"
)

// Scraper 接口定义了从订阅源抓取页面内容的行为。
type Scraper interface {
	// Scrape 执行抓取操作，按源的顺序返回每个页面 (失败的页面 Err 非空)。
	// 实现者只负责抓取和文本提取，不解析链接。
	Scrape(ctx context.Context) ([]*model.Page, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}

// PageFetcher 抓取单个 URL 并返回其文本内容。
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

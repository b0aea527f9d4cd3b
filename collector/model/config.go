package model

import "time"

// ProxyConfig 是从订阅源中采集到的一条代理配置链接，是整个模块的核心数据结构。
// 它在内存中使用，通过 API 序列化为 JSON，但输出文件中只写入 Link。
type ProxyConfig struct {
	Link     string `json:"link" bson:"_id"`
	Protocol string `json:"protocol" bson:"protocol"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"` // 链接中的备注/标签
	Source   string `json:"source" bson:"source"`                 // 来源 URL

	// Countries 是通过名称关键词 (或 geo 回退) 匹配到的国家类别，可以有多个
	Countries []string `json:"countries,omitempty" bson:"countries,omitempty"`

	// 以下字段只有在启用探测时才会填充
	Host      string        `json:"host,omitempty" bson:"host,omitempty"`
	Port      int           `json:"port,omitempty" bson:"port,omitempty"`
	Reachable bool          `json:"reachable,omitempty" bson:"reachable"`
	Latency   time.Duration `json:"latency,omitempty" bson:"latency,omitempty"`
}

// Page 是一个订阅源的抓取结果。抓取失败时 Err 非空。
type Page struct {
	URL     string
	Content string
	Err     error
}

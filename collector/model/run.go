package model

import "time"

// RunRecord 是一次采集运行的统计快照。
type RunRecord struct {
	ID                string        `json:"id" bson:"_id"`
	Timestamp         time.Time     `json:"timestamp" bson:"timestamp"`
	TotalConfigs      int           `json:"total_configs" bson:"total_configs"`
	ProtocolsWithData int           `json:"protocols_with_data" bson:"protocols_with_data"`
	CountryConfigs    int           `json:"country_configs" bson:"country_configs"`
	CountriesWithData int           `json:"countries_with_data" bson:"countries_with_data"`
	PagesFetched      int           `json:"pages_fetched" bson:"pages_fetched"`
	PagesFailed       int           `json:"pages_failed" bson:"pages_failed"`
	Filtered          int           `json:"filtered" bson:"filtered"`
	Duration          time.Duration `json:"duration" bson:"duration"`
}

// ProtocolEntry 是 README 协议表中的一行。
type ProtocolEntry struct {
	Name    string  `json:"name" bson:"name"`
	Count   int     `json:"count" bson:"count"`
	Percent float64 `json:"percent" bson:"percent"`
	File    string  `json:"file" bson:"file"`
}

// CountryEntry 是 README 国家表中的一行。
type CountryEntry struct {
	Name    string `json:"name" bson:"name"`
	Alias   string `json:"alias,omitempty" bson:"alias,omitempty"` // 本地化 (中文) 别名
	FlagURL string `json:"flag_url,omitempty" bson:"flag_url,omitempty"`
	Count   int    `json:"count" bson:"count"`
	File    string `json:"file" bson:"file"`
}

// RunResult 是 Manager.Run 的完整输出。
type RunResult struct {
	Record    RunRecord       `json:"record"`
	Protocols []ProtocolEntry `json:"protocols"`
	Countries []CountryEntry  `json:"countries"`

	// 按类别分组的链接，键为协议/国家名称
	ByProtocol map[string][]string `json:"-"`
	ByCountry  map[string][]string `json:"-"`
	Configs    []*ProxyConfig      `json:"-"`
}

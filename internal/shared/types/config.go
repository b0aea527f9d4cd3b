package types

// CommonConf 包含运行模式相关的配置
type CommonConf struct {
	Mode            string `ini:"mode"` // "once" 或 "daemon"
	IntervalMinutes int    `ini:"interval_minutes"`
	WatchInputs     bool   `ini:"watch_inputs"` // daemon 模式下输入文件变化时立即重跑
}

// PathsConf 定义输入/输出文件的位置
type PathsConf struct {
	URLsFile     string `ini:"urls_file"`
	KeywordsFile string `ini:"keywords_file"`
	OutputDir    string `ini:"output_dir"`
	ReadmeFile   string `ini:"readme_file"`
}

// FetchConf 控制对订阅源的抓取行为
type FetchConf struct {
	TimeoutSeconds int    `ini:"timeout_seconds"`
	Concurrency    int    `ini:"concurrency"`
	MaxRetries     int    `ini:"max_retries"`
	MaxPageSize    int    `ini:"max_page_size"`  // bytes
	BatchDelayMs   int    `ini:"batch_delay_ms"` // 批次之间的等待
	UserAgent      string `ini:"user_agent"`
	UpstreamProxy  string `ini:"upstream_proxy"` // socks5://host:port 或 http://host:port
}

// FilterConf 定义配置过滤规则
type FilterConf struct {
	Phrase          string `ini:"phrase"`
	MaxLength       int    `ini:"max_length"`
	MaxPercent25    int    `ini:"max_percent25"`
	MaxTotalConfigs int    `ini:"max_total_configs"`
}

// ReadmeConf 控制 README 统计文件的生成
type ReadmeConf struct {
	Enabled  bool   `ini:"enabled"`
	Timezone string `ini:"timezone"`
	LinkBase string `ini:"link_base"` // 为空时使用相对路径
}

// ProbeConf 是可选的 TCP 可达性探测
type ProbeConf struct {
	Enabled         bool   `ini:"enabled"`
	TimeoutSeconds  int    `ini:"timeout_seconds"`
	Concurrency     int    `ini:"concurrency"`
	DropUnreachable bool   `ini:"drop_unreachable"`
	GeoLookup       bool   `ini:"geo_lookup"`
	GeoAPI          string `ini:"geo_api"` // 含一个 %s 占位符
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
	Dir   string `ini:"dir"` // 为空时只输出到 stderr
}

// WebConf 是 daemon 模式下的状态服务
type WebConf struct {
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// MetricsConf 控制 Prometheus 指标
type MetricsConf struct {
	TextfilePath string `ini:"textfile_path"` // node_exporter textfile collector
}

// MongoConf 用于把每次运行归档到 MongoDB
type MongoConf struct {
	DSN            string `ini:"dsn"`
	Database       string `ini:"database"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
}

// S3Conf 用于把输出文件发布到 S3 兼容存储
type S3Conf struct {
	Bucket   string `ini:"bucket"`
	Prefix   string `ini:"prefix"`
	Region   string `ini:"region"`
	Endpoint string `ini:"endpoint"` // 非空时使用 path-style 访问
}

// Config 是采集器的统一配置结构体
type Config struct {
	CommonConf  `ini:"common"`
	PathsConf   `ini:"paths"`
	FetchConf   `ini:"fetch"`
	FilterConf  `ini:"filter"`
	ReadmeConf  `ini:"readme"`
	ProbeConf   `ini:"probe"`
	LogConf     `ini:"log"`
	WebConf     `ini:"web"`
	MetricsConf `ini:"metrics"`
	MongoConf   `ini:"mongo"`
	S3Conf      `ini:"s3"`
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig 返回一份不依赖任何配置文件即可运行的默认配置。
func DefaultConfig() *Config {
	return &Config{
		CommonConf: CommonConf{
			Mode:            "once",
			IntervalMinutes: 360,
			WatchInputs:     true,
		},
		PathsConf: PathsConf{
			URLsFile:     "config/urls.txt",
			KeywordsFile: "config/keywords.json",
			OutputDir:    "output_configs",
			ReadmeFile:   "README.md",
		},
		FetchConf: FetchConf{
			TimeoutSeconds: 15,
			Concurrency:    10,
			MaxRetries:     2,
			MaxPageSize:    5 * 1024 * 1024,
			BatchDelayMs:   1000,
			UserAgent:      DefaultUserAgent,
		},
		FilterConf: FilterConf{
			Phrase:          "i_love_",
			MaxLength:       3000,
			MaxPercent25:    30,
			MaxTotalConfigs: 100000,
		},
		ReadmeConf: ReadmeConf{
			Enabled:  true,
			Timezone: "Asia/Shanghai",
		},
		ProbeConf: ProbeConf{
			TimeoutSeconds: 3,
			Concurrency:    50,
			GeoAPI:         "http://ip-api.com/json/%s?fields=status,country,countryCode",
		},
		LogConf: LogConf{
			Level: "info",
		},
		MongoConf: MongoConf{
			Database:       "v2scrape",
			TimeoutSeconds: 10,
		},
	}
}

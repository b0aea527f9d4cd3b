package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

var (
	ErrNoSources    = errors.New("no valid source URLs")
	ErrNoCategories = errors.New("no valid keyword categories")
)

// LoadIni 加载 collector.ini 行为配置文件。文件不存在时保留默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); err == nil {
		iniFile, err := ini.Load(fileName)
		if err != nil {
			return err
		}
		if err := iniFile.MapTo(cfg); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	overrideFromEnvString(&cfg.LogConf.Level, "V2SCRAPE_LOG_LEVEL")
	overrideFromEnvInt(&cfg.WebConf.Port, "V2SCRAPE_WEB_PORT")
	overrideFromEnvString(&cfg.MongoConf.DSN, "V2SCRAPE_MONGO_DSN")
	overrideFromEnvString(&cfg.S3Conf.Bucket, "V2SCRAPE_S3_BUCKET")
	overrideFromEnvString(&cfg.FetchConf.UpstreamProxy, "V2SCRAPE_UPSTREAM_PROXY")
	return nil
}

// LoadSources 加载 urls.txt，每行一个 URL。
// 空行和 '#' 开头的注释行被忽略，非 http(s) 的行会告警并跳过，重复的 URL 只保留第一次出现。
func LoadSources(fileName string) ([]string, error) {
	l := logger.WithComponent("Config")

	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var urls []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			l.Warn().Int("line", lineNum).Str("value", line).Msg("Skipping non-http(s) line in sources file.")
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sources file: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoSources)
	}
	l.Info().Int("count", len(urls)).Msg("Loaded source URLs.")
	return urls, nil
}

// rawCategory 是 keywords 文件中尚未校验的一项
type rawCategory struct {
	name   string
	isList bool
	items  []any
}

// LoadKeywords 加载 keywords.json (或 .yaml/.yml)。
// 与协议同名的类别是额外的提取正则，其余类别都是国家。
func LoadKeywords(fileName string) (*types.KeywordSet, error) {
	l := logger.WithComponent("Config")

	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	var raws []rawCategory
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		raws, err = decodeOrderedYAML(data)
	default:
		raws, err = decodeOrderedJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse keywords file %s: %w", fileName, err)
	}

	set := &types.KeywordSet{}
	for _, rc := range raws {
		if !rc.isList {
			l.Warn().Str("category", rc.name).Msg("Keyword category is not a list, skipping.")
			continue
		}
		values := cleanItems(rc.items)
		if len(values) == 0 {
			l.Debug().Str("category", rc.name).Msg("Keyword category is empty, skipping.")
			continue
		}
		cat := types.Category{Name: rc.name, Values: values}
		if _, ok := model.LookupProtocol(rc.name); ok {
			set.Protocols = append(set.Protocols, cat)
		} else {
			set.Countries = append(set.Countries, cat)
		}
	}

	for _, p := range model.Protocols() {
		if set.Patterns(p.Name) == nil {
			l.Warn().Str("protocol", p.Name).Msg("Protocol category missing from keywords file, built-in extraction only.")
		}
	}

	if len(set.Protocols)+len(set.Countries) == 0 {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoCategories)
	}
	l.Info().Int("protocols", len(set.Protocols)).Int("countries", len(set.Countries)).Msg("Loaded keyword categories.")
	return set, nil
}

// cleanItems 只保留非空字符串，去掉首尾空白并去重 (保持顺序)。
func cleanItems(items []any) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// decodeOrderedJSON 逐个 token 读取顶层对象，保留键的原始顺序。
// 重复的键以最后一次出现的值为准，但位置沿用第一次出现的位置。
func decodeOrderedJSON(data []byte) ([]rawCategory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("top level value must be an object")
	}

	var out []rawCategory
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("category %q: %w", key, err)
		}
		rc := rawCategory{name: key}
		var items []any
		if err := json.Unmarshal(raw, &items); err == nil && items != nil {
			rc.isList = true
			rc.items = items
		}

		if i, dup := index[key]; dup {
			out[i] = rc
			continue
		}
		index[key] = len(out)
		out = append(out, rc)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeOrderedYAML 通过 yaml.Node 保留映射的键顺序。
func decodeOrderedYAML(data []byte) ([]rawCategory, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level value must be a mapping")
	}

	var out []rawCategory
	index := make(map[string]int)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]
		rc := rawCategory{name: key}
		if val.Kind == yaml.SequenceNode {
			rc.isList = true
			for _, item := range val.Content {
				if item.Kind == yaml.ScalarNode && item.Tag == "!!str" {
					rc.items = append(rc.items, item.Value)
				}
			}
		}
		if j, dup := index[key]; dup {
			out[j] = rc
			continue
		}
		index[key] = len(out)
		out = append(out, rc)
	}
	return out, nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

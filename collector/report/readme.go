package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
)

const placeholder = "无"

var printer = message.NewPrinter(language.English)

// Location 加载时区，失败时回退到 UTC。
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		l := logger.WithComponent("Collector/Report")
		l.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone, using UTC.")
		return time.UTC
	}
	return loc
}

// Render 生成 README 的 Markdown 内容。now 应该已经转换到目标时区。
func Render(res *model.RunResult, now time.Time) string {
	rec := res.Record
	var b strings.Builder
	w := func(format string, args ...any) { b.WriteString(printer.Sprintf(format, args...)) }

	avg := 0.0
	if rec.CountriesWithData > 0 {
		avg = float64(rec.CountryConfigs) / float64(rec.CountriesWithData)
	}
	topCountry, topCountryN := placeholder, 0
	if len(res.Countries) > 0 {
		topCountry, topCountryN = res.Countries[0].Name, res.Countries[0].Count
	}
	topProtocol, topProtocolN := placeholder, 0
	if len(res.Protocols) > 0 {
		topProtocol, topProtocolN = res.Protocols[0].Name, res.Protocols[0].Count
	}

	w("# 📊 V2Ray 配置抓取结果 (%s)\n\n", now.Format("2006-01-02"))
	w("*最后更新: %s*\n\n", now.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("> 此文件由自动脚本生成，包含从多个来源抓取和分类的 V2Ray 配置信息。\n\n")

	b.WriteString("## 📋 详细统计概览\n\n")
	w("- **总配置数量**: **%d**\n", rec.TotalConfigs)
	w("- **有数据的协议类型**: %d\n", rec.ProtocolsWithData)
	w("- **国家相关配置数**: %d\n", rec.CountryConfigs)
	w("- **有配置的国家/地区**: %d\n", rec.CountriesWithData)
	b.WriteString(fmt.Sprintf("- **平均每国配置数**: %.1f\n", avg))
	w("- **配置最多的国家**: %s (%d 个配置)\n", topCountry, topCountryN)
	w("- **配置最多的协议**: %s (%d 个配置)\n\n", topProtocol, topProtocolN)

	b.WriteString("## ℹ️ 说明\n\n")
	b.WriteString("- 国家文件仅包含在**配置名称**中找到国家名称/标识的配置\n")
	b.WriteString("- 配置名称首先从链接的`#`部分提取，如果不存在，则从内部名称(对于Vmess/SSR)提取\n")
	b.WriteString("- 所有配置已按类别整理到不同目录中，便于查找和使用\n")
	b.WriteString("- 配置可能随时失效，请及时更新\n\n")

	b.WriteString("## 📁 协议配置文件\n\n")
	if len(res.Protocols) == 0 {
		b.WriteString("*没有找到协议配置。*\n\n")
	} else {
		b.WriteString("| 协议类型 | 配置数量 | 占比 | 文件链接 |\n")
		b.WriteString("|---------|---------|------|----------|\n")
		for _, p := range res.Protocols {
			w("| **%s** | %d | %s%% | [`%s.txt`](%s) |\n", p.Name, p.Count, fmt.Sprintf("%.1f", p.Percent), p.Name, p.File)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 🌍 国家/地区配置文件\n\n")
	if len(res.Countries) == 0 {
		b.WriteString("*没有找到与国家相关的配置。*\n\n")
	} else {
		b.WriteString("| 国家/地区 | 配置数量 | 文件链接 |\n")
		b.WriteString("|----------|---------|----------|\n")
		for _, c := range res.Countries {
			w("| %s | %d | [`%s.txt`](%s) |\n", countryLabel(c), c.Count, c.Name, c.File)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 📝 备注\n\n")
	b.WriteString("- 本项目仅供学习和研究使用\n")
	b.WriteString("- 请遵守相关法律法规\n")
	b.WriteString("- 定期更新以获取最新配置\n")
	return b.String()
}

func countryLabel(c model.CountryEntry) string {
	var parts []string
	if c.FlagURL != "" {
		parts = append(parts, fmt.Sprintf(`<img src="%s" width="20" height="15" alt="%s flag" align="absmiddle">`, c.FlagURL, c.Name))
	}
	name := c.Name
	if c.Alias != "" {
		name = fmt.Sprintf("%s（%s）", c.Name, c.Alias)
	}
	return strings.Join(append(parts, name), " ")
}

// Write 原子地写入 README 文件。
func Write(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create README dir: %w", err)
		}
	}
	if err := renameio.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write README: %w", err)
	}
	return nil
}

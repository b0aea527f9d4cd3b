package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v2scrape/collector/classifier"
	"v2scrape/collector/model"
	"v2scrape/collector/storage"
	"v2scrape/internal/shared/types"
)

func testLinker(t *testing.T, base string) Linker {
	root := t.TempDir()
	fs := storage.NewFileStorage(filepath.Join(root, "output_configs"))
	return NewLinker(filepath.Join(root, "README.md"), fs, base)
}

func TestLinkerRelativeAndBase(t *testing.T) {
	l := testLinker(t, "")
	assert.Equal(t, "output_configs/protocols/Vless.txt", l.Protocol("Vless"))
	assert.Equal(t, "output_configs/countries/South%20Korea.txt", l.Country("South Korea"))

	l = testLinker(t, "https://raw.example.com/repo/main/")
	assert.Equal(t, "https://raw.example.com/repo/main/output_configs/protocols/Trojan.txt", l.Protocol("Trojan"))
}

func TestProtocolEntriesOrder(t *testing.T) {
	by := map[string][]string{
		model.Trojan: {"a", "b"},
		model.Vmess:  {"a", "b"},
		model.Vless:  {"a", "b", "c", "d"},
		model.Tuic:   nil,
	}
	entries := ProtocolEntries(by, testLinker(t, ""))
	require.Len(t, entries, 3)

	// 数量降序，相同数量按名字排序 (Trojan 在 Vmess 之前)
	assert.Equal(t, model.Vless, entries[0].Name)
	assert.Equal(t, model.Trojan, entries[1].Name)
	assert.Equal(t, model.Vmess, entries[2].Name)
	assert.InDelta(t, 50.0, entries[0].Percent, 0.001)
	assert.InDelta(t, 25.0, entries[2].Percent, 0.001)
}

func TestCountryEntries(t *testing.T) {
	cls := classifier.New([]types.Category{
		{Name: "Germany", Values: []string{"DE", "德国", "Germany"}},
		{Name: "Japan", Values: []string{"JP", "日本"}},
		{Name: "Mars", Values: []string{"mars"}},
	})
	by := map[string][]string{
		"Germany": {"x"},
		"Japan":   {"x", "y"},
		"Mars":    {"z"},
	}
	entries := CountryEntries(by, cls, testLinker(t, ""))
	require.Len(t, entries, 3)

	assert.Equal(t, "Japan", entries[0].Name)
	assert.Equal(t, "日本", entries[0].Alias)
	assert.Equal(t, "https://flagcdn.com/w20/jp.png", entries[0].FlagURL)
	assert.Equal(t, "Germany", entries[1].Name)
	assert.Equal(t, "Mars", entries[2].Name)
	assert.Empty(t, entries[2].FlagURL)
	assert.Empty(t, entries[2].Alias)
}

func TestRenderFull(t *testing.T) {
	now := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	res := &model.RunResult{
		Record: model.RunRecord{
			TotalConfigs:      12345,
			ProtocolsWithData: 2,
			CountryConfigs:    3,
			CountriesWithData: 2,
		},
		Protocols: []model.ProtocolEntry{
			{Name: model.Vless, Count: 10000, Percent: 81.0, File: "output_configs/protocols/Vless.txt"},
			{Name: model.Trojan, Count: 2345, Percent: 19.0, File: "output_configs/protocols/Trojan.txt"},
		},
		Countries: []model.CountryEntry{
			{Name: "Japan", Alias: "日本", FlagURL: "https://flagcdn.com/w20/jp.png", Count: 2, File: "output_configs/countries/Japan.txt"},
			{Name: "Mars", Count: 1, File: "output_configs/countries/Mars.txt"},
		},
	}

	out := Render(res, now)
	assert.Contains(t, out, "# 📊 V2Ray 配置抓取结果 (2024-03-09)")
	assert.Contains(t, out, "*最后更新: 2024-03-09 08:30:00 UTC*")
	assert.Contains(t, out, "- **总配置数量**: **12,345**\n")
	assert.Contains(t, out, "- **平均每国配置数**: 1.5\n")
	assert.Contains(t, out, "- **配置最多的国家**: Japan (2 个配置)\n")
	assert.Contains(t, out, "- **配置最多的协议**: Vless (10,000 个配置)\n")
	assert.Contains(t, out, "| **Vless** | 10,000 | 81.0% | [`Vless.txt`](output_configs/protocols/Vless.txt) |\n")
	assert.Contains(t, out, `<img src="https://flagcdn.com/w20/jp.png" width="20" height="15" alt="Japan flag" align="absmiddle"> Japan（日本）`)
	assert.Contains(t, out, "| Mars | 1 | [`Mars.txt`](output_configs/countries/Mars.txt) |\n")
	assert.NotContains(t, out, "没有找到")
	assert.True(t, strings.HasSuffix(out, "- 定期更新以获取最新配置\n"))
}

func TestRenderEmpty(t *testing.T) {
	out := Render(&model.RunResult{}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, out, "- **总配置数量**: **0**\n")
	assert.Contains(t, out, "- **平均每国配置数**: 0.0\n")
	assert.Contains(t, out, "- **配置最多的国家**: 无 (0 个配置)\n")
	assert.Contains(t, out, "- **配置最多的协议**: 无 (0 个配置)\n")
	assert.Contains(t, out, "*没有找到协议配置。*")
	assert.Contains(t, out, "*没有找到与国家相关的配置。*")
	assert.NotContains(t, out, "| 协议类型 |")
}

func TestWriteAndLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs", "README.md")
	require.NoError(t, Write(path, "# hello\n"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(data))

	assert.Equal(t, time.UTC, Location(""))
	assert.Equal(t, time.UTC, Location("Not/AZone"))
	assert.Equal(t, "Asia/Shanghai", Location("Asia/Shanghai").String())
}

package report

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"v2scrape/collector/classifier"
	"v2scrape/collector/model"
	"v2scrape/collector/storage"
)

const flagURLFormat = "https://flagcdn.com/w20/%s.png"

// Linker 生成 README 表格中指向输出文件的链接。
// base 为空时使用相对于 README 所在目录的路径，否则拼接到 base 之后。
type Linker struct {
	protocolRel string
	countryRel  string
	base        string
}

func NewLinker(readmePath string, fs *storage.FileStorage, base string) Linker {
	readmeDir := filepath.Dir(readmePath)
	return Linker{
		protocolRel: relSlash(readmeDir, fs.ProtocolDir()),
		countryRel:  relSlash(readmeDir, fs.CountryDir()),
		base:        strings.TrimRight(base, "/"),
	}
}

func relSlash(from, to string) string {
	absFrom, err1 := filepath.Abs(from)
	absTo, err2 := filepath.Abs(to)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(absFrom, absTo); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(to)
}

func (l Linker) Protocol(name string) string { return l.join(l.protocolRel, name) }
func (l Linker) Country(name string) string  { return l.join(l.countryRel, name) }

func (l Linker) join(dir, name string) string {
	link := dir + "/" + url.PathEscape(storage.FileName(name))
	if dir == "." || dir == "" {
		link = url.PathEscape(storage.FileName(name))
	}
	if l.base != "" {
		return l.base + "/" + link
	}
	return link
}

// ProtocolEntries 按数量降序生成协议表，数量相同时按协议名字母序。
func ProtocolEntries(byProtocol map[string][]string, linker Linker) []model.ProtocolEntry {
	total := 0
	for _, links := range byProtocol {
		total += len(links)
	}

	names := make([]string, 0, len(byProtocol))
	for name := range byProtocol {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []model.ProtocolEntry
	for _, name := range names {
		n := len(byProtocol[name])
		if n == 0 {
			continue
		}
		entries = append(entries, model.ProtocolEntry{
			Name:    name,
			Count:   n,
			Percent: float64(n) / float64(total) * 100,
			File:    linker.Protocol(name),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	return entries
}

// CountryEntries 按数量降序生成国家表，数量相同时保持 keywords 文件中的顺序。
func CountryEntries(byCountry map[string][]string, cls *classifier.Classifier, linker Linker) []model.CountryEntry {
	var entries []model.CountryEntry
	for _, name := range cls.Countries() {
		n := len(byCountry[name])
		if n == 0 {
			continue
		}
		e := model.CountryEntry{
			Name:  name,
			Alias: cls.Alias(name),
			Count: n,
			File:  linker.Country(name),
		}
		if iso := cls.ISOCode(name); iso != "" {
			e.FlagURL = fmt.Sprintf(flagURLFormat, strings.ToLower(iso))
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	return entries
}

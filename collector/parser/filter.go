package parser

import (
	"strings"
	"unicode/utf8"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/types"
)

// 过滤原因，同时用作指标标签
const (
	ReasonEmpty           = "empty"
	ReasonPhrase          = "phrase"
	ReasonPercent25       = "percent25"
	ReasonTooLong         = "too_long"
	ReasonUnknownProtocol = "unknown_protocol"
	ReasonEmptyBody       = "empty_body"
	ReasonMalformed       = "malformed"
)

// Rules 是过滤阈值，0 表示不限制。
type Rules struct {
	Phrase       string
	MaxLength    int
	MaxPercent25 int
}

func RulesFrom(c types.FilterConf) Rules {
	return Rules{
		Phrase:       c.Phrase,
		MaxLength:    c.MaxLength,
		MaxPercent25: c.MaxPercent25,
	}
}

// ShouldFilter 判断一条链接是否应该丢弃，返回是否丢弃及原因。
func ShouldFilter(link string, r Rules) (bool, string) {
	if strings.TrimSpace(link) == "" {
		return true, ReasonEmpty
	}
	if r.Phrase != "" && strings.Contains(strings.ToLower(link), strings.ToLower(r.Phrase)) {
		return true, ReasonPhrase
	}
	// 被反复 URL 编码的链接，通常已经损坏
	if r.MaxPercent25 > 0 && strings.Count(link, "%25") >= r.MaxPercent25 {
		return true, ReasonPercent25
	}
	if r.MaxLength > 0 && utf8.RuneCountInString(link) >= r.MaxLength {
		return true, ReasonTooLong
	}

	p, n, ok := model.DetectProtocol(link)
	if !ok {
		return true, ReasonUnknownProtocol
	}
	// 只看前缀之后是否为空，"vmess://#name" 这样只带标签的链接保留
	body := link[n:]
	if strings.TrimSpace(body) == "" {
		return true, ReasonEmptyBody
	}
	if p.Name == model.Trojan && !strings.Contains(body, "@") {
		return true, ReasonMalformed
	}
	return false, ""
}

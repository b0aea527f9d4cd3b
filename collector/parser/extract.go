package parser

import (
	"regexp"
	"strings"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

// builtinPattern 匹配所有已知 scheme，直到空白、引号、尖括号或反引号为止。
// '@' '#' '?' 都是链接的合法组成部分，不能作为终止符。
var builtinPattern = regexp.MustCompile("(?i)\\b(?:vmess|vless|trojan|ssr|ss|tuic|hy2|hysteria2|wg|wireguard)://[^\\s\"'<>`]+")

// Extractor 从页面文本中提取代理链接。
// 内置正则覆盖所有协议，keywords 文件中的协议类别可以补充额外的正则。
type Extractor struct {
	extra map[string][]*regexp.Regexp
}

// NewExtractor 编译 keywords 中每个协议类别的额外正则，无效的正则会告警并跳过。
func NewExtractor(set *types.KeywordSet) *Extractor {
	l := logger.WithComponent("Parser")
	e := &Extractor{extra: make(map[string][]*regexp.Regexp)}
	if set == nil {
		return e
	}
	for _, cat := range set.Protocols {
		for _, expr := range cat.Values {
			re, err := regexp.Compile(expr)
			if err != nil {
				l.Warn().Err(err).Str("protocol", cat.Name).Str("pattern", expr).Msg("Invalid protocol pattern, skipping.")
				continue
			}
			e.extra[cat.Name] = append(e.extra[cat.Name], re)
		}
	}
	return e
}

// Extract 返回按协议分组的链接，每组内保持出现顺序且不重复。
// 只有带着该协议前缀的结果才会被保留。
func (e *Extractor) Extract(text string) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]struct{})
	add := func(protocol, link string) {
		link = strings.TrimRight(strings.TrimSpace(link), ",;")
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out[protocol] = append(out[protocol], link)
	}

	// 起始位置 -> 内置正则的匹配结果
	builtin := make(map[int]string)
	for _, loc := range builtinPattern.FindAllStringIndex(text, -1) {
		m := text[loc[0]:loc[1]]
		builtin[loc[0]] = m
		if p, _, ok := model.DetectProtocol(m); ok {
			add(p.Name, m)
		}
	}

	for _, p := range model.Protocols() {
		for _, re := range e.extra[p.Name] {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				raw := text[loc[0]:loc[1]]
				m := strings.TrimSpace(raw)
				if m == "" {
					continue
				}
				at := loc[0] + strings.Index(raw, m)
				// ss:// 出现在 vmess:// 内部这类情况，前面紧挨着字母或数字
				if at > 0 && isAlnum(text[at-1]) {
					continue
				}
				// 内置正则在同一位置已经匹配到更完整的链接
				if b, ok := builtin[at]; ok && strings.HasPrefix(b, m) {
					continue
				}
				if !p.HasPrefix(m) {
					continue
				}
				// 用户正则可能把 ss:// 匹配到 ssr:// 上，以实际前缀为准
				if actual, _, ok := model.DetectProtocol(m); ok && actual.Name == p.Name {
					add(p.Name, m)
				}
			}
		}
	}
	return out
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// ExpandSubscription 处理整页都是 base64 的订阅: 文本中找不到任何链接，
// 但解码后能找到时，返回解码后的文本。其余情况原样返回。
func ExpandSubscription(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || builtinPattern.MatchString(trimmed) || !looksLikeBase64(trimmed) {
		return text
	}
	decoded, err := DecodeBase64(trimmed)
	if err != nil || !builtinPattern.MatchString(decoded) {
		return text
	}
	return decoded
}

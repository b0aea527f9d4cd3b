package classifier

import (
	"regexp"
	"strings"

	"v2scrape/internal/shared/types"
)

var nonLetters = regexp.MustCompile(`[^a-zA-Z]+`)

type country struct {
	name   string
	tokens map[string]struct{} // 2-3 位大写缩写，按完整单词匹配 (小写存储)
	subs   []string            // 其他关键词，按子串匹配
	alias  string
	iso    string
}

// Classifier 根据配置名称匹配国家类别。
type Classifier struct {
	countries []country
	byISO     map[string]string
}

// New 按 keywords 文件中的顺序构建分类器。
func New(cats []types.Category) *Classifier {
	c := &Classifier{byISO: make(map[string]string)}
	for _, cat := range cats {
		ct := country{name: cat.Name, tokens: make(map[string]struct{})}
		for _, kw := range cat.Values {
			if isUpperAbbrev(kw, 2, 3) {
				ct.tokens[strings.ToLower(kw)] = struct{}{}
			} else {
				ct.subs = append(ct.subs, kw)
			}
			if ct.iso == "" && isUpperAbbrev(kw, 2, 2) {
				ct.iso = kw
			}
			if ct.alias == "" {
				ct.alias = cjkOnly(kw)
			}
		}
		if ct.iso != "" {
			if _, exists := c.byISO[ct.iso]; !exists {
				c.byISO[ct.iso] = ct.name
			}
		}
		c.countries = append(c.countries, ct)
	}
	return c
}

// Match 返回名称匹配到的所有国家类别，顺序与 keywords 文件一致。
func (c *Classifier) Match(name string) []string {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	lower := strings.ToLower(name)

	words := make(map[string]struct{})
	for _, w := range nonLetters.Split(lower, -1) {
		if w != "" {
			words[w] = struct{}{}
		}
	}

	var out []string
	for _, ct := range c.countries {
		if ct.matches(name, lower, words) {
			out = append(out, ct.name)
		}
	}
	return out
}

func (ct *country) matches(name, lower string, words map[string]struct{}) bool {
	for tok := range ct.tokens {
		if _, ok := words[tok]; ok {
			return true
		}
	}
	for _, kw := range ct.subs {
		if strings.Contains(lower, strings.ToLower(kw)) || strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Countries 返回所有国家类别名称。
func (c *Classifier) Countries() []string {
	out := make([]string, 0, len(c.countries))
	for _, ct := range c.countries {
		out = append(out, ct.name)
	}
	return out
}

// Alias 返回国家第一个包含中文的关键词中的汉字部分。
func (c *Classifier) Alias(name string) string {
	if ct := c.find(name); ct != nil {
		return ct.alias
	}
	return ""
}

// ISOCode 返回国家的两位 ISO 代码 (第一个恰好两位大写字母的关键词)。
func (c *Classifier) ISOCode(name string) string {
	if ct := c.find(name); ct != nil {
		return ct.iso
	}
	return ""
}

// ByISO 通过 ISO 代码反查国家类别，大小写不敏感。
func (c *Classifier) ByISO(code string) (string, bool) {
	name, ok := c.byISO[strings.ToUpper(code)]
	return name, ok
}

func (c *Classifier) find(name string) *country {
	for i := range c.countries {
		if c.countries[i].name == name {
			return &c.countries[i]
		}
	}
	return nil
}

func isUpperAbbrev(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func cjkOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

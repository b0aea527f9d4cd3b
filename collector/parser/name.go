package parser

import (
	"encoding/json"
	"net/url"
	"strings"

	"v2scrape/collector/model"
)

var (
	vmessNameKeys = []string{"ps", "name", "remarks", "tag"}
	queryNameKeys = []string{"name", "remarks", "ps"}
)

// Name 提取链接的备注名称，优先使用 #fragment，否则按协议从链接内容中查找。
// 找不到时返回空字符串。
func Name(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		frag := link[i+1:]
		if u, err := url.PathUnescape(frag); err == nil {
			frag = u
		}
		if frag = strings.TrimSpace(frag); frag != "" {
			return frag
		}
	}

	p, n, ok := model.DetectProtocol(link)
	if !ok {
		return ""
	}
	body := cutFragment(link[n:])

	switch p.Name {
	case model.Vmess:
		return vmessName(body)
	case model.ShadowSocksR:
		return ssrName(body)
	case model.ShadowSocks:
		// ss 的名称只存在于 fragment 中
		return ""
	default:
		return queryName(body)
	}
}

func vmessName(body string) string {
	obj, ok := decodeVmess(body)
	if !ok {
		return ""
	}
	for _, k := range vmessNameKeys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// decodeVmess 解码 vmess:// 之后的 base64 JSON，失败时再尝试先做百分号解码。
func decodeVmess(body string) (map[string]any, bool) {
	candidates := []string{body}
	if u, err := url.PathUnescape(body); err == nil && u != body {
		candidates = append(candidates, u)
	}
	for _, c := range candidates {
		decoded, err := DecodeBase64(c)
		if err != nil {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(decoded), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func ssrName(body string) string {
	decoded, err := DecodeBase64(body)
	if err != nil {
		return ""
	}
	_, params, found := strings.Cut(decoded, "/?")
	if !found {
		return ""
	}
	values, _ := url.ParseQuery(params)
	remarks := values.Get("remarks")
	if remarks == "" {
		return ""
	}
	name, err := DecodeBase64(remarks)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

func queryName(body string) string {
	_, query, found := strings.Cut(body, "?")
	if !found {
		return ""
	}
	values, _ := url.ParseQuery(query)
	for _, k := range queryNameKeys {
		if v := strings.TrimSpace(values.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func cutFragment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

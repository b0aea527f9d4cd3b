package scraper

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractText 根据 Content-Type 把响应体转换为用于提取链接的纯文本。
//   - JSON: 重新序列化，不做 HTML 转义 (保留 '<' '&' 原样)
//   - HTML: 优先取 <pre>/<code> 中的文本，否则取所有文本节点
//   - 其他: 原样返回
func ExtractText(contentType string, body []byte) string {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if s, ok := reencodeJSON(body); ok {
			return s
		}
		return string(body)
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return htmlText(body)
	default:
		return string(body)
	}
}

func reencodeJSON(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}

func htmlText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	var parts []string
	doc.Find("pre, code").Each(func(_ int, sel *goquery.Selection) {
		if sel.Is("code") && sel.ParentsFiltered("pre").Length() > 0 {
			return
		}
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, "\n")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

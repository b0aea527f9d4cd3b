package parser

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

var errNotUTF8 = errors.New("decoded base64 is not valid UTF-8")

// DecodeBase64 解码订阅中常见的各种 base64 变体:
// URL-safe 字母表、缺失的 '=' 填充、夹杂的换行和空白。
func DecodeBase64(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		case '-':
			return '+'
		case '_':
			return '/'
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errNotUTF8
	}
	return string(b), nil
}

// looksLikeBase64 粗略判断整段文本是否可能是一个 base64 订阅。
func looksLikeBase64(s string) bool {
	n := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=', r == '-', r == '_':
		case r == ' ', r == '\t', r == '\r', r == '\n':
			continue
		default:
			return false
		}
		n++
	}
	return n >= 16
}

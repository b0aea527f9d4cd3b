package parser

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"v2scrape/collector/model"
)

var ErrNoEndpoint = errors.New("no endpoint in link")

// Endpoint 解析链接指向的服务器地址和端口。
func Endpoint(link string) (string, int, error) {
	p, n, ok := model.DetectProtocol(link)
	if !ok {
		return "", 0, ErrNoEndpoint
	}
	body := cutFragment(link[n:])

	switch p.Name {
	case model.Vmess:
		obj, ok := decodeVmess(body)
		if !ok {
			return "", 0, fmt.Errorf("vmess: %w", ErrNoEndpoint)
		}
		host, _ := obj["add"].(string)
		return checkEndpoint(host, jsonPort(obj["port"]))

	case model.ShadowSocks:
		return ssEndpoint(body)

	case model.ShadowSocksR:
		decoded, err := DecodeBase64(body)
		if err != nil {
			return "", 0, fmt.Errorf("ssr: %w", err)
		}
		decoded, _, _ = strings.Cut(decoded, "/?")
		// host:port:protocol:method:obfs:password, host 自身可能是 IPv6
		parts := strings.Split(decoded, ":")
		if len(parts) < 6 {
			return "", 0, fmt.Errorf("ssr: %w", ErrNoEndpoint)
		}
		k := len(parts) - 5
		return checkEndpoint(strings.Join(parts[:k], ":"), parts[k])

	default:
		u, err := url.Parse(link)
		if err != nil {
			return "", 0, err
		}
		return checkEndpoint(u.Hostname(), u.Port())
	}
}

// ssEndpoint 同时支持 SIP002 (userinfo@host:port) 和整体 base64 的旧格式。
func ssEndpoint(body string) (string, int, error) {
	body, _, _ = strings.Cut(body, "?")
	if strings.Contains(body, "@") {
		body = strings.TrimSuffix(body, "/")
	} else {
		decoded, err := DecodeBase64(body)
		if err != nil {
			return "", 0, fmt.Errorf("ss: %w", err)
		}
		body = decoded
	}
	at := strings.LastIndexByte(body, '@')
	if at < 0 {
		return "", 0, fmt.Errorf("ss: %w", ErrNoEndpoint)
	}
	hostPort := strings.TrimSuffix(body[at+1:], "/")
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, fmt.Errorf("ss: %w", err)
	}
	return checkEndpoint(host, port)
}

func jsonPort(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case float64:
		return strconv.Itoa(int(p))
	}
	return ""
}

func checkEndpoint(host, portStr string) (string, int, error) {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if host == "" {
		return "", 0, ErrNoEndpoint
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, ErrNoEndpoint)
	}
	return host, port, nil
}

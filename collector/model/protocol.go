package model

import "strings"

// Protocol 描述一种代理链接协议及其可接受的 scheme 前缀。
type Protocol struct {
	Name     string
	Prefixes []string // 全部小写，包含 "://"
}

// 类别名称同时也是输出文件名 (protocols/<Name>.txt) 和 keywords 文件中的键。
const (
	Vmess        = "Vmess"
	Vless        = "Vless"
	Trojan       = "Trojan"
	ShadowSocks  = "ShadowSocks"
	ShadowSocksR = "ShadowSocksR"
	WireGuard    = "WireGuard"
	Tuic         = "Tuic"
	Hysteria2    = "Hysteria2"
)

var protocols = []Protocol{
	{Name: Vmess, Prefixes: []string{"vmess://"}},
	{Name: Vless, Prefixes: []string{"vless://"}},
	{Name: Trojan, Prefixes: []string{"trojan://"}},
	{Name: ShadowSocks, Prefixes: []string{"ss://"}},
	{Name: ShadowSocksR, Prefixes: []string{"ssr://"}},
	{Name: WireGuard, Prefixes: []string{"wg://", "wireguard://"}},
	{Name: Tuic, Prefixes: []string{"tuic://"}},
	{Name: Hysteria2, Prefixes: []string{"hy2://", "hysteria2://"}},
}

// Protocols 返回所有已知协议，顺序固定。
func Protocols() []Protocol {
	out := make([]Protocol, len(protocols))
	copy(out, protocols)
	return out
}

// LookupProtocol 按类别名查找协议。
func LookupProtocol(name string) (Protocol, bool) {
	for _, p := range protocols {
		if p.Name == name {
			return p, true
		}
	}
	return Protocol{}, false
}

// DetectProtocol 根据链接前缀判断协议，scheme 部分不区分大小写。
// 返回匹配的协议和前缀长度。
func DetectProtocol(link string) (Protocol, int, bool) {
	lower := strings.ToLower(link)
	for _, p := range protocols {
		for _, prefix := range p.Prefixes {
			if strings.HasPrefix(lower, prefix) {
				return p, len(prefix), true
			}
		}
	}
	return Protocol{}, 0, false
}

// HasPrefix 判断链接是否以该协议的某个前缀开头。
func (p Protocol) HasPrefix(link string) bool {
	lower := strings.ToLower(link)
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

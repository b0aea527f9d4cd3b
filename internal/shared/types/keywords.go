package types

// Category 是 keywords 文件中的一个条目: 名称 + 有序的关键词/正则列表。
type Category struct {
	Name   string
	Values []string
}

// KeywordSet 是解析后的 keywords 文件。
// Protocols 中的 Values 是额外的提取正则，Countries 中的 Values 是国家匹配关键词。
// 两者都保持文件中的原始顺序。
type KeywordSet struct {
	Protocols []Category
	Countries []Category
}

// Patterns 返回某个协议类别的额外正则，不存在时返回 nil。
func (k *KeywordSet) Patterns(protocol string) []string {
	for _, c := range k.Protocols {
		if c.Name == protocol {
			return c.Values
		}
	}
	return nil
}

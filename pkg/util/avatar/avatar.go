// Package avatar 根据昵称生成默认头像
// 头像为带首字母的 SVG，以 data URL 形式内联存储在用户记录中
package avatar

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const svgTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 128 128">` +
	`<rect width="128" height="128" fill="#%s" />` +
	`<text x="50%%" y="50%%" font-family="Arial, sans-serif" font-size="64" fill="#FFFFFF" text-anchor="middle" dy=".3em">%s</text>` +
	`</svg>`

// Generate 生成昵称对应的头像 data URL
// 同一昵称总是得到同一头像
func Generate(name string) string {
	svg := fmt.Sprintf(svgTemplate, Color(name), Initials(name))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// Initials 取每个单词首字母，最多两个，空名返回 "?"
func Initials(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "?"
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteRune([]rune(f)[0])
	}
	initials := []rune(strings.ToUpper(b.String()))
	if len(initials) > 2 {
		initials = initials[:2]
	}
	return string(initials)
}

// Color 由昵称哈希得到 6 位十六进制背景色
func Color(name string) string {
	var hash int32
	for _, r := range name {
		hash = r + ((hash << 5) - hash)
	}
	return fmt.Sprintf("%06X", uint32(hash)&0x00FFFFFF)
}

// Package i18n 接口提示语的多语言目录
package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// 支持的语言
const (
	LocaleZH = "zh-CN"
	LocaleEN = "en-US"

	DefaultLocale = LocaleZH
	localeHeader  = "X-Locale"
	localeQuery   = "lang"
)

var supportedTags = []language.Tag{
	language.SimplifiedChinese,
	language.AmericanEnglish,
}

var matcher = language.NewMatcher(supportedTags)

// ResolveLocale 按 ?lang=、X-Locale、Accept-Language 的顺序解析语言
func ResolveLocale(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return DefaultLocale
	}
	candidates := []string{
		c.Query(localeQuery),
		c.GetHeader(localeHeader),
		c.GetHeader("Accept-Language"),
	}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if locale, ok := MatchLocale(raw); ok {
			return locale
		}
	}
	return DefaultLocale
}

// MatchLocale 将任意语言标签映射到支持的语言
func MatchLocale(raw string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return "", false
	}
	if index == 1 {
		return LocaleEN, true
	}
	return LocaleZH, true
}

// T 翻译消息，缺失时依次回退到默认语言和 key 本身
func T(locale, key string) string {
	if catalog, ok := messages[locale]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 翻译并格式化消息
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}

package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResolveLocale(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		url    string
		header map[string]string
		want   string
	}{
		{name: "default", url: "/", want: LocaleZH},
		{name: "accept language", url: "/", header: map[string]string{"Accept-Language": "en-GB,en;q=0.9"}, want: LocaleEN},
		{name: "query wins", url: "/?lang=zh", header: map[string]string{"Accept-Language": "en"}, want: LocaleZH},
		{name: "header", url: "/", header: map[string]string{"X-Locale": "en-US"}, want: LocaleEN},
		{name: "unsupported", url: "/", header: map[string]string{"Accept-Language": "xx"}, want: LocaleZH},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", tt.url, nil)
			for k, v := range tt.header {
				c.Request.Header.Set(k, v)
			}
			if got := ResolveLocale(c); got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for key := range messages[LocaleZH] {
		if _, ok := messages[LocaleEN][key]; !ok {
			t.Fatalf("missing english message for %s", key)
		}
	}
	for key := range messages[LocaleEN] {
		if _, ok := messages[LocaleZH][key]; !ok {
			t.Fatalf("missing chinese message for %s", key)
		}
	}
}

func TestTranslateFallback(t *testing.T) {
	if got := T("fr-FR", "error.forbidden"); got != messages[LocaleZH]["error.forbidden"] {
		t.Fatalf("unknown locale must fall back to default, got %q", got)
	}
	if got := T(LocaleEN, "error.missing_key"); got != "error.missing_key" {
		t.Fatalf("missing key must echo the key, got %q", got)
	}
	if got := Sprintf(LocaleEN, "error.rate_limited", 30); got != "Too many requests, retry in 30 seconds" {
		t.Fatalf("unexpected formatted message: %q", got)
	}
}

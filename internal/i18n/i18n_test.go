package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Pathly" {
		t.Errorf("T(AppTitle) = %q, want 'Pathly'", got)
	}

	got = T(ctx, "ChatGreeting")
	if !strings.Contains(got, "topic") {
		t.Errorf("T(ChatGreeting) = %q, want a topic prompt", got)
	}
}

func TestTranslateGerman(t *testing.T) {
	ctx := initLang(t, "de")

	got := T(ctx, "ChatGreeting")
	if !strings.Contains(got, "Thema") {
		t.Errorf("T(ChatGreeting) = %q, want the German greeting", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "CoursesSaved", 1)
	if got1 != "1 course saved." {
		t.Errorf("Tp(CoursesSaved, 1) = %q, want '1 course saved.'", got1)
	}

	got5 := Tp(ctx, "CoursesSaved", 5)
	if got5 != "5 courses saved." {
		t.Errorf("Tp(CoursesSaved, 5) = %q, want '5 courses saved.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "HourLimitWarning", map[string]any{"Hours": 34, "Limit": 25})
	if !strings.Contains(got, "34") || !strings.Contains(got, "25") {
		t.Errorf("Td(HourLimitWarning) = %q, want hours and limit filled in", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ChatGreeting")
	}))

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"no header uses the server language", "", "topic"},
		{"german request", "de", "Thema"},
		{"weighted list", "de-DE, de;q=0.9, en;q=0.8", "Thema"},
		{"unknown language falls back", "fr", "topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if !strings.Contains(got, tt.want) {
				t.Errorf("greeting = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

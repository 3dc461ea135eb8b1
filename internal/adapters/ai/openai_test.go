package ai

import (
	"strings"
	"testing"
	"time"

	"cryptofolio/pkg/models"
)

func TestParseNarrative(t *testing.T) {
	now := time.Now()

	t.Run("plain json array", func(t *testing.T) {
		content := `[{"title": "Stablecoin gap", "description": "No stable allocation.", "severity": "medium", "kind": "info", "score": 55}]`

		insights, err := parseNarrative(content, now)
		if err != nil {
			t.Fatalf("parseNarrative() error = %v", err)
		}
		if len(insights) != 1 {
			t.Fatalf("expected 1 insight, got %d", len(insights))
		}

		in := insights[0]
		if in.ID != "narrative-1" {
			t.Errorf("ID = %s, want narrative-1", in.ID)
		}
		if in.Category != models.CategoryNarrative {
			t.Errorf("Category = %s, want narrative", in.Category)
		}
		if in.Score != 55 {
			t.Errorf("Score = %d, want 55", in.Score)
		}
		if in.Status != models.StatusNew {
			t.Errorf("Status = %s, want new", in.Status)
		}
	})

	t.Run("markdown fenced output", func(t *testing.T) {
		content := "```json\n[{\"title\": \"T\", \"description\": \"D\", \"severity\": \"low\", \"kind\": \"info\", \"score\": 30}]\n```"

		insights, err := parseNarrative(content, now)
		if err != nil {
			t.Fatalf("parseNarrative() error = %v", err)
		}
		if len(insights) != 1 {
			t.Fatalf("expected 1 insight, got %d", len(insights))
		}
	})

	t.Run("invalid fields fall back", func(t *testing.T) {
		content := `[{"title": "T", "description": "D", "severity": "critical", "kind": "alarm", "score": 250}]`

		insights, err := parseNarrative(content, now)
		if err != nil {
			t.Fatalf("parseNarrative() error = %v", err)
		}

		in := insights[0]
		if in.Severity != models.SeverityLow {
			t.Errorf("unknown severity should fall back to low, got %s", in.Severity)
		}
		if in.Kind != models.KindInfo {
			t.Errorf("unknown kind should fall back to info, got %s", in.Kind)
		}
		if in.Score != 100 {
			t.Errorf("score should clamp to 100, got %d", in.Score)
		}
	})

	t.Run("entries without title dropped", func(t *testing.T) {
		content := `[{"title": "", "description": "D"}, {"title": "Kept", "description": "D2", "severity": "low", "kind": "info", "score": 20}]`

		insights, err := parseNarrative(content, now)
		if err != nil {
			t.Fatalf("parseNarrative() error = %v", err)
		}
		if len(insights) != 1 {
			t.Fatalf("expected 1 insight, got %d", len(insights))
		}
		if insights[0].Title != "Kept" {
			t.Errorf("Title = %s, want Kept", insights[0].Title)
		}
	})

	t.Run("empty array", func(t *testing.T) {
		insights, err := parseNarrative("[]", now)
		if err != nil {
			t.Fatalf("parseNarrative() error = %v", err)
		}
		if len(insights) != 0 {
			t.Errorf("expected no insights, got %d", len(insights))
		}
	})

	t.Run("garbage is an error", func(t *testing.T) {
		if _, err := parseNarrative("sorry, I cannot help", now); err == nil {
			t.Fatal("expected error for non-JSON output")
		}
	})
}

func TestSystemPromptLocale(t *testing.T) {
	t.Run("english and empty locales use the base prompt", func(t *testing.T) {
		for _, locale := range []string{"", "en"} {
			if got := systemPromptFor(locale); got != systemPrompt {
				t.Errorf("locale %q: prompt should be unchanged", locale)
			}
		}
	})

	t.Run("other locales carry a language instruction", func(t *testing.T) {
		got := systemPromptFor("ru")
		if !strings.HasPrefix(got, systemPrompt) {
			t.Error("localized prompt should extend the base prompt")
		}
		if !strings.Contains(got, `"ru"`) {
			t.Errorf("prompt should name the locale, got: %s", got)
		}
	})
}

package gmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryLabel(t *testing.T) {
	tests := []struct {
		name     string
		category string
		expected string
	}{
		{
			name:     "primary",
			category: "Primary",
			expected: "INBOX",
		},
		{
			name:     "social",
			category: "Social",
			expected: "CATEGORY_SOCIAL",
		},
		{
			name:     "promotions",
			category: "Promotions",
			expected: "CATEGORY_PROMOTIONS",
		},
		{
			name:     "updates",
			category: "Updates",
			expected: "CATEGORY_UPDATES",
		},
		{
			name:     "forums",
			category: "Forums",
			expected: "CATEGORY_FORUMS",
		},
		{
			name:     "spam",
			category: "Spam",
			expected: "SPAM",
		},
		{
			name:     "unknown falls back to inbox",
			category: "Newsletters",
			expected: "INBOX",
		},
		{
			name:     "empty falls back to inbox",
			category: "",
			expected: "INBOX",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryLabel(tt.category))
		})
	}
}

func TestBuildQuery(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filters  Filters
		expected string
	}{
		{
			name:     "empty",
			filters:  Filters{},
			expected: "",
		},
		{
			name:     "unread only",
			filters:  Filters{UnreadOnly: true},
			expected: "is:unread",
		},
		{
			name:     "all flags",
			filters:  Filters{UnreadOnly: true, HasAttachment: true, IsImportant: true},
			expected: "is:unread has:attachment is:important",
		},
		{
			name:     "date spans one calendar day",
			filters:  Filters{Date: day},
			expected: "after:2024/03/15 before:2024/03/16",
		},
		{
			name:     "free text trails the flags",
			filters:  Filters{UnreadOnly: true, Query: "invoice march"},
			expected: "is:unread invoice march",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filters.BuildQuery())
		})
	}
}

func TestPostFilter(t *testing.T) {
	messages := []MessageSummary{
		{
			ID:            "with-att",
			From:          "billing@shop.example",
			Subject:       "Your invoice",
			Snippet:       "Invoice for March attached",
			Date:          "Fri, 15 Mar 2024 09:30:00 +0000",
			HasAttachment: true,
		},
		{
			ID:      "no-att",
			From:    "newsletter@shop.example",
			Subject: "Weekly digest",
			Snippet: "News from the week",
			Date:    "Thu, 14 Mar 2024 20:00:00 +0000",
		},
	}

	t.Run("has attachment", func(t *testing.T) {
		out := Filters{HasAttachment: true}.PostFilter(messages)
		if assert.Len(t, out, 1) {
			assert.Equal(t, "with-att", out[0].ID)
			assert.True(t, out[0].HasAttachment)
		}
	})

	t.Run("exact calendar day", func(t *testing.T) {
		day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		out := Filters{Date: day}.PostFilter(messages)
		if assert.Len(t, out, 1) {
			assert.Equal(t, "with-att", out[0].ID)
		}
	})

	t.Run("unparseable date excluded", func(t *testing.T) {
		day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		out := Filters{Date: day}.PostFilter([]MessageSummary{{ID: "bad", Date: "not a date"}})
		assert.Empty(t, out)
	})

	t.Run("all query terms must match", func(t *testing.T) {
		out := Filters{Query: "invoice march"}.PostFilter(messages)
		if assert.Len(t, out, 1) {
			assert.Equal(t, "with-att", out[0].ID)
		}

		out = Filters{Query: "invoice nonexistent"}.PostFilter(messages)
		assert.Empty(t, out)
	})

	t.Run("query matches sender", func(t *testing.T) {
		out := Filters{Query: "newsletter"}.PostFilter(messages)
		if assert.Len(t, out, 1) {
			assert.Equal(t, "no-att", out[0].ID)
		}
	})

	t.Run("query matches body beyond the snippet", func(t *testing.T) {
		// Snippets truncate, so a term deep in the body must still match.
		deep := MessageSummary{
			ID:       "deep",
			From:     "a@x.com",
			Subject:  "Aviso",
			Snippet:  "vista previa corta",
			bodyText: "palabraclave escondida en el cuerpo",
		}
		out := Filters{Query: "palabraclave"}.PostFilter([]MessageSummary{deep})
		if assert.Len(t, out, 1) {
			assert.Equal(t, "deep", out[0].ID)
		}
	})

	t.Run("no filters keeps everything", func(t *testing.T) {
		assert.Len(t, Filters{}.PostFilter(messages), 2)
	})
}

func TestParseMessageDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{
			name:  "rfc1123z",
			value: "Fri, 15 Mar 2024 09:30:00 +0000",
		},
		{
			name:  "named zone",
			value: "Fri, 15 Mar 2024 09:30:00 UTC",
		},
		{
			name:  "single digit day",
			value: "Fri, 1 Mar 2024 09:30:00 +0000",
		},
		{
			name:  "trailing zone comment",
			value: "Fri, 15 Mar 2024 09:30:00 +0000 (UTC)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMessageDate(tt.value)
			assert.NoError(t, err)
		})
	}

	_, err := parseMessageDate("garbage")
	assert.Error(t, err)
}

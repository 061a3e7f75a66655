package gmail

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPageSize is the number of raw messages fetched per list page before
// post-filtering. Pages can come back smaller after filters are applied; no
// extra pages are fetched to compensate.
const DefaultPageSize = 20

// categoryLabels maps UI category names to Gmail label ids.
var categoryLabels = map[string]string{
	"Primary":    "INBOX",
	"Social":     "CATEGORY_SOCIAL",
	"Promotions": "CATEGORY_PROMOTIONS",
	"Updates":    "CATEGORY_UPDATES",
	"Forums":     "CATEGORY_FORUMS",
	"Spam":       "SPAM",
}

// CategoryLabel maps a category name to its Gmail label id. Unrecognized or
// empty categories fall back to INBOX.
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return "INBOX"
}

// Filters are the list-view refinements applied on top of a category.
type Filters struct {
	UnreadOnly    bool
	HasAttachment bool
	IsImportant   bool
	// Date restricts results to a single calendar day.
	Date time.Time
	// Query is a free-text search; every space-separated term must match.
	Query string
}

// BuildQuery renders the filters as a Gmail search query string. The date
// filter becomes an after/before pair spanning exactly one calendar day.
func (f Filters) BuildQuery() string {
	var terms []string
	if f.UnreadOnly {
		terms = append(terms, "is:unread")
	}
	if f.HasAttachment {
		terms = append(terms, "has:attachment")
	}
	if f.IsImportant {
		terms = append(terms, "is:important")
	}
	if !f.Date.IsZero() {
		day := f.Date.Format("2006/01/02")
		next := f.Date.AddDate(0, 0, 1).Format("2006/01/02")
		terms = append(terms, fmt.Sprintf("after:%s before:%s", day, next))
	}
	if f.Query != "" {
		terms = append(terms, f.Query)
	}
	return strings.Join(terms, " ")
}

// PostFilter re-applies the filters the provider query cannot guarantee:
// attachment presence, exact calendar-day match on the Date header, and
// AND-semantics substring search over subject, sender and body.
func (f Filters) PostFilter(messages []MessageSummary) []MessageSummary {
	out := make([]MessageSummary, 0, len(messages))
	for _, msg := range messages {
		if f.HasAttachment && !msg.HasAttachment {
			continue
		}
		if !f.Date.IsZero() && !sameCalendarDay(msg.Date, f.Date) {
			continue
		}
		if f.Query != "" && !matchesAllTerms(msg, f.Query) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func sameCalendarDay(dateHeader string, day time.Time) bool {
	parsed, err := parseMessageDate(dateHeader)
	if err != nil {
		return false
	}
	y1, m1, d1 := parsed.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// parseMessageDate parses a Date header. RFC 1123 variants cover most
// senders; the RFC 822 forms catch older agents.
func parseMessageDate(value string) (time.Time, error) {
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
	}
	// Some agents append a parenthesized zone name after the offset.
	if i := strings.Index(value, " ("); i > 0 {
		value = value[:i]
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date header %q", value)
}

func matchesAllTerms(msg MessageSummary, query string) bool {
	body := msg.bodyText
	if body == "" {
		// HTML-only messages have no decoded text body; the snippet is the
		// closest stand-in.
		body = msg.Snippet
	}
	haystack := strings.ToLower(msg.Subject + " " + msg.From + " " + body)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

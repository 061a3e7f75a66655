package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Fallback header values shown to the user when a message lacks the header.
const (
	UnknownSender  = "Desconocido"
	MissingSubject = "Sin Asunto"
)

// MessageSummary is the list-view shape of a message. It is derived from live
// provider data on every request and never persisted.
type MessageSummary struct {
	ID            string `json:"id"`
	From          string `json:"from"`
	Subject       string `json:"subject"`
	Date          string `json:"date"`
	Snippet       string `json:"snippet"`
	IsUnread      bool   `json:"isUnread"`
	Category      string `json:"category"`
	HasAttachment bool   `json:"hasAttachment"`

	// bodyText is the decoded text/plain body, kept only for free-text
	// filtering and never serialized.
	bodyText string
}

// MessageDetail is the single-view shape of a message, including decoded
// bodies and the inline image and attachment inventories.
type MessageDetail struct {
	ID           string        `json:"id"`
	ThreadID     string        `json:"threadId"`
	From         string        `json:"from"`
	Subject      string        `json:"subject"`
	Date         string        `json:"date"`
	TextBody     string        `json:"textBody"`
	HTMLBody     string        `json:"htmlBody"`
	InlineImages []InlineImage `json:"inlineImages"`
	Attachments  []Attachment  `json:"attachments"`
	IsUnread     bool          `json:"isUnread"`
}

// InlineImage is an image part referenced from the HTML body via a cid: URI.
// Data holds the decoded bytes when the part carried them inline; otherwise
// AttachmentID identifies the body for a lazy fetch.
type InlineImage struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	ContentID    string `json:"contentId"`
	Data         []byte `json:"data,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

// Attachment is a non-image file part. The body is never fetched eagerly; it
// is retrieved on demand by AttachmentID.
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size,omitempty"`
}

// content is the accumulator for a MIME part tree walk. Text and HTML bodies
// are first-match-wins in document order; images and attachments collect.
type content struct {
	textBody     string
	htmlBody     string
	inlineImages []InlineImage
	attachments  []Attachment
}

func (c content) merge(o content) content {
	if c.textBody == "" {
		c.textBody = o.textBody
	}
	if c.htmlBody == "" {
		c.htmlBody = o.htmlBody
	}
	c.inlineImages = append(c.inlineImages, o.inlineImages...)
	c.attachments = append(c.attachments, o.attachments...)
	return c
}

// walkParts walks a MIME part tree depth-first and returns the accumulated
// bodies, inline images and attachments. Later text parts of an already seen
// type are ignored.
func walkParts(parts []*gmail.MessagePart) content {
	var acc content
	for _, part := range parts {
		acc = acc.merge(extractPart(part))
	}
	return acc
}

func extractPart(part *gmail.MessagePart) content {
	var acc content
	switch {
	case part.MimeType == "text/plain":
		if part.Body != nil && part.Body.Data != "" {
			acc.textBody = decodeText(part.Body.Data)
		}
	case part.MimeType == "text/html":
		if part.Body != nil && part.Body.Data != "" {
			acc.htmlBody = decodeText(part.Body.Data)
		}
	case strings.HasPrefix(part.MimeType, "image/"):
		img := InlineImage{
			Filename:  part.Filename,
			MimeType:  part.MimeType,
			ContentID: partHeader(part, "Content-ID"),
		}
		if part.Body != nil {
			if part.Body.AttachmentId != "" {
				img.AttachmentID = part.Body.AttachmentId
			} else if data, err := decodeBase64(part.Body.Data); err == nil {
				img.Data = data
			}
		}
		acc.inlineImages = append(acc.inlineImages, img)
	case part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "":
		acc.attachments = append(acc.attachments, Attachment{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
		})
	default:
		if len(part.Parts) > 0 {
			acc = walkParts(part.Parts)
		}
	}
	return acc
}

// ExtractDetail shapes a full message into its single-view representation.
func ExtractDetail(msg *gmail.Message) MessageDetail {
	detail := MessageDetail{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		From:         headerOr(msg, "From", UnknownSender),
		Subject:      headerOr(msg, "Subject", MissingSubject),
		Date:         HeaderValue(msg, "Date"),
		InlineImages: []InlineImage{},
		Attachments:  []Attachment{},
		IsUnread:     hasLabel(msg, "UNREAD"),
	}

	if msg.Payload != nil {
		if len(msg.Payload.Parts) > 0 {
			acc := walkParts(msg.Payload.Parts)
			detail.TextBody = acc.textBody
			detail.HTMLBody = acc.htmlBody
			detail.InlineImages = append(detail.InlineImages, acc.inlineImages...)
			detail.Attachments = append(detail.Attachments, acc.attachments...)
		} else if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
			// Single-part payload, no part tree to walk.
			detail.TextBody = decodeText(msg.Payload.Body.Data)
		}
	}

	return detail
}

// ExtractSummary shapes a full message into its list-view representation.
func ExtractSummary(msg *gmail.Message) MessageSummary {
	return MessageSummary{
		ID:            msg.Id,
		From:          headerOr(msg, "From", UnknownSender),
		Subject:       headerOr(msg, "Subject", MissingSubject),
		Date:          HeaderValue(msg, "Date"),
		Snippet:       msg.Snippet,
		IsUnread:      hasLabel(msg, "UNREAD"),
		Category:      categoryOf(msg),
		HasAttachment: hasAttachment(msg),
		bodyText:      textBodyOf(msg),
	}
}

// textBodyOf decodes the first text/plain body of a message, if any.
func textBodyOf(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	if len(msg.Payload.Parts) > 0 {
		return walkParts(msg.Payload.Parts).textBody
	}
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		return decodeText(msg.Payload.Body.Data)
	}
	return ""
}

// categoryOf maps a message's labels to its coarse category. The first
// matching category label wins; anything else is Primary.
func categoryOf(msg *gmail.Message) string {
	ordered := []struct{ label, category string }{
		{"CATEGORY_SOCIAL", "Social"},
		{"CATEGORY_PROMOTIONS", "Promotions"},
		{"CATEGORY_UPDATES", "Updates"},
		{"CATEGORY_FORUMS", "Forums"},
		{"SPAM", "Spam"},
	}
	for _, c := range ordered {
		if hasLabel(msg, c.label) {
			return c.category
		}
	}
	return "Primary"
}

// hasAttachment reports whether any part of the message carries a filename.
func hasAttachment(msg *gmail.Message) bool {
	if msg.Payload == nil {
		return false
	}
	return anyPartHasFilename(msg.Payload.Parts)
}

func anyPartHasFilename(parts []*gmail.MessagePart) bool {
	for _, part := range parts {
		if part.Filename != "" {
			return true
		}
		if anyPartHasFilename(part.Parts) {
			return true
		}
	}
	return false
}

func hasLabel(msg *gmail.Message, label string) bool {
	for _, l := range msg.LabelIds {
		if l == label {
			return true
		}
	}
	return false
}

func headerOr(msg *gmail.Message, name, fallback string) string {
	if v := HeaderValue(msg, name); v != "" {
		return v
	}
	return fallback
}

func partHeader(part *gmail.MessagePart, name string) string {
	for _, h := range part.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// decodeBase64 decodes message body data. Gmail emits base64url, sometimes
// without padding, and some senders smuggle standard base64 through.
func decodeBase64(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

func decodeText(data string) string {
	b, err := decodeBase64(data)
	if err != nil {
		return ""
	}
	return string(b)
}

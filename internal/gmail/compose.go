package gmail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxAttachmentSize is Gmail's combined attachment limit per message.
const MaxAttachmentSize = 25 * 1024 * 1024

// FilePart is an uploaded file to be embedded in an outgoing message. Images
// are inlined and referenced from the HTML body by Content-ID; everything
// else rides along as a regular attachment.
type FilePart struct {
	Filename string
	MimeType string
	Data     []byte
}

// IsImage reports whether the part should be embedded inline.
func (p FilePart) IsImage() bool {
	return strings.HasPrefix(p.MimeType, "image/")
}

// TotalSize returns the combined byte size of the given parts.
func TotalSize(parts []FilePart) int64 {
	var total int64
	for _, p := range parts {
		total += int64(len(p.Data))
	}
	return total
}

var (
	emptyParagraph  = regexp.MustCompile(`(?i)<p>\s*</p>`)
	breakParagraph  = regexp.MustCompile(`(?i)<p><br\s*/?></p>`)
	repeatedBreaks  = regexp.MustCompile(`(?i)(<br\s*/?>\s*){3,}`)
	anchorOpen      = regexp.MustCompile(`<a\s`)
	htmlTagStripper = regexp.MustCompile(`<[^>]*>?`)
)

type envelopeStyle struct {
	backgroundColor string
	textColor       string
	linkColor       string
}

var envelopeStyles = map[string]envelopeStyle{
	"light":  {backgroundColor: "transparent", textColor: "#0a0a0a", linkColor: "#780CFF"},
	"dark":   {backgroundColor: "#0a0a0a", textColor: "#ffffff", linkColor: "#780CFF"},
	"simple": {backgroundColor: "transparent", textColor: "#0a0a0a", linkColor: "#0C18FF"},
}

// WrapHTMLBody wraps an outgoing body in the themed HTML table envelope used
// for sent mail. Unknown themes fall back to light. Bodies that already carry
// an <html> document get the envelope spliced into their existing body tag.
func WrapHTMLBody(body, theme string) string {
	style, ok := envelopeStyles[theme]
	if !ok {
		style = envelopeStyles["light"]
	}

	clean := breakParagraph.ReplaceAllString(body, "<br />")
	clean = emptyParagraph.ReplaceAllString(clean, "")
	clean = repeatedBreaks.ReplaceAllString(clean, "<br /><br />")

	styled := anchorOpen.ReplaceAllString(clean,
		fmt.Sprintf(`<a style="color: %s; text-decoration: underline;" `, style.linkColor))

	const commonStyles = "font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 0;"

	if !strings.Contains(strings.ToLower(clean), "<html") {
		return fmt.Sprintf(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
  </head>
  <body>
    <table width="100%%" cellpadding="0" cellspacing="0" border="0">
      <tbody>
      <tr>
        <td align="center" valign="top">
          <table cellpadding="0" cellspacing="0" style="%s background-color: %s; color: %s; padding: 20px; width: 100%%; max-width: 600px;">
            <tr>
              <td style="padding-bottom: 20px;">
                %s
              </td>
            </tr>
            <tr>
              <td align="center" style="padding-top: 10px; padding-bottom: 10px; text-align: center; font-size: 12px; line-height: 1.6; color: #4d4d4d; font-family: Arial, sans-serif; border-top: 1px solid #e0e0e0;">
                <p style="%s">
                  Este mensaje fue enviado desde <a href="https://unisend.co">Unisend.co</a>.
                </p>
              </td>
            </tr>
          </table>
        </td>
      </tr>
      </tbody>
    </table>
  </body>
</html>`, commonStyles, style.backgroundColor, style.textColor, styled, commonStyles)
	}

	bodyOpen := regexp.MustCompile(`<body[^>]*>`)
	out := bodyOpen.ReplaceAllString(clean, fmt.Sprintf(`<body>
    <table width="100%%" cellpadding="0" cellspacing="0" border="0">
      <tr>
        <td align="center" valign="top">
          <table width="100%%" cellpadding="0" cellspacing="0" border="0" style="%s background-color: %s; color: %s;">
            <tr>
              <td style="padding: 20px;">`, commonStyles, style.backgroundColor, style.textColor))
	return strings.Replace(out, "</body>", `</td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>`, 1)
}

// encodeSubject encodes a subject header as RFC 2047 base64 when it carries
// non-ASCII characters. ASCII subjects pass through untouched.
func encodeSubject(subject string) string {
	return mime.BEncoding.Encode("UTF-8", subject)
}

// encodeRaw produces the base64url raw form the Gmail send API expects,
// without padding.
func encodeRaw(message string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(message))
}

// BuildRawMessage constructs a simple HTML message for the send endpoint. The
// body is expected to already be wrapped by WrapHTMLBody; it travels base64
// transfer-encoded.
func BuildRawMessage(from, to, cc, bcc, subject, htmlBody string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	if cc != "" {
		b.WriteString("Cc: " + cc + "\r\n")
	}
	if bcc != "" {
		b.WriteString("Bcc: " + bcc + "\r\n")
	}
	b.WriteString("Subject: " + encodeSubject(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(htmlBody)))
	return encodeRaw(b.String())
}

// BuildReplyMessage constructs a reply as multipart/mixed wrapping a
// multipart/related part for the cid-referenced inline images, which in turn
// wraps a multipart/alternative text/HTML pair. Non-image files are appended
// as regular attachments at the mixed level.
func BuildReplyMessage(from, to, subject, inReplyTo, body string, files []FilePart) string {
	mixedBoundary := "mixed_" + uuid.NewString()
	relatedBoundary := "related_" + uuid.NewString()
	altBoundary := "alt_" + uuid.NewString()

	var images, attachments []FilePart
	for _, f := range files {
		if f.IsImage() {
			images = append(images, f)
		} else {
			attachments = append(attachments, f)
		}
	}

	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	htmlBody := replyHTMLBody(body, images)
	plainBody := htmlTagStripper.ReplaceAllString(body, "")

	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + encodeSubject(subject),
	}
	if inReplyTo != "" {
		lines = append(lines,
			"In-Reply-To: "+inReplyTo,
			"References: "+inReplyTo,
		)
	}
	lines = append(lines,
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="`+mixedBoundary+`"`,
		"",
		"--"+mixedBoundary,
		`Content-Type: multipart/related; boundary="`+relatedBoundary+`"`,
		"",
		"--"+relatedBoundary,
		`Content-Type: multipart/alternative; boundary="`+altBoundary+`"`,
		"",
		"--"+altBoundary,
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte(plainBody)),
		"",
		"--"+altBoundary,
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte(htmlBody)),
		"",
		"--"+altBoundary+"--",
	)

	for i, img := range images {
		lines = append(lines,
			"",
			"--"+relatedBoundary,
			"Content-Type: "+img.MimeType,
			"Content-Transfer-Encoding: base64",
			`Content-Disposition: inline; filename="`+img.Filename+`"`,
			fmt.Sprintf("Content-ID: <embedded-image-%d>", i+1),
			"",
			base64.StdEncoding.EncodeToString(img.Data),
		)
	}
	lines = append(lines, "", "--"+relatedBoundary+"--")

	for _, att := range attachments {
		lines = append(lines,
			"",
			"--"+mixedBoundary,
			fmt.Sprintf("Content-Type: %s; name=%q", att.MimeType, att.Filename),
			"Content-Transfer-Encoding: base64",
			`Content-Disposition: attachment; filename="`+att.Filename+`"`,
			"",
			base64.StdEncoding.EncodeToString(att.Data),
		)
	}
	lines = append(lines, "", "--"+mixedBoundary+"--")

	return encodeRaw(strings.Join(lines, "\r\n"))
}

// replyHTMLBody renders the reply body plus cid references for each inline
// image, in document order.
func replyHTMLBody(body string, images []FilePart) string {
	var refs strings.Builder
	for i := range images {
		fmt.Fprintf(&refs, `<br><img src="cid:embedded-image-%d" alt="Embedded Image %d" />`, i+1, i+1)
	}
	return fmt.Sprintf(`<html>
  <body>
    <div style="font-family: Arial, sans-serif; font-size: 16px; line-height: 1.6; max-width: 600px; margin: 0 auto;">
      <p>%s</p>
      %s
      <div style="text-align: center; padding: 20px; font-size: 14px; color: #AAAAAA;">
        Este correo ha sido enviado por medio de Unisend.co
      </div>
    </div>
  </body>
</html>`, body, refs.String())
}

// BuildForwardMessage constructs a forwarded copy of an original message with
// the usual quoted header block above the original body.
func BuildForwardMessage(from, to, subject, originalFrom, originalTo, originalDate, originalBody string) string {
	fwdSubject := subject
	lower := strings.ToLower(subject)
	if !strings.HasPrefix(lower, "fwd:") && !strings.HasPrefix(lower, "fw:") {
		fwdSubject = "Fwd: " + subject
	}

	var quoted strings.Builder
	quoted.WriteString("---------- Forwarded message ---------<br>")
	fmt.Fprintf(&quoted, "From: %s<br>", originalFrom)
	fmt.Fprintf(&quoted, "Date: %s<br>", originalDate)
	fmt.Fprintf(&quoted, "Subject: %s<br>", subject)
	fmt.Fprintf(&quoted, "To: %s<br><br>", originalTo)
	quoted.WriteString(originalBody)

	return BuildRawMessage(from, to, "", "", fwdSubject, quoted.String())
}

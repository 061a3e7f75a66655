package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client wraps the Gmail Users service for a single mailbox, bound to one
// access token. Token refresh is handled by the caller, not by the client, so
// an expired token surfaces as a 401 instead of being refreshed silently.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client bound to the given access token. The token
// is used as-is via a static token source; a new client must be built after a
// refresh.
func NewClient(ctx context.Context, accessToken string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// IsAuthError reports whether err is a Gmail API authorization failure, the
// signal that the access token has expired and a refresh should be attempted.
func IsAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return false
}

// ListMessageIDs returns up to maxResults message ids restricted to labelID
// and matching the query, plus the provider's cursor for the next page. An
// empty pageToken means the first page.
func (c *Client) ListMessageIDs(ctx context.Context, labelID, query, pageToken string, maxResults int64) ([]string, string, error) {
	req := c.svc.Messages.List("me").MaxResults(maxResults).Context(ctx)
	if labelID != "" {
		req = req.LabelIds(labelID)
	}
	if query != "" {
		req = req.Q(query)
	}
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}

	res, err := req.Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, res.NextPageToken, nil
}

// GetMessage retrieves a full message including its MIME part tree.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// MarkRead clears the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, err := c.svc.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	return err
}

// MarkSpam moves a message to spam by adding the SPAM label and removing the
// INBOX label.
func (c *Client) MarkSpam(ctx context.Context, messageID string) error {
	_, err := c.svc.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{"SPAM"},
		RemoveLabelIds: []string{"INBOX"},
	}).Context(ctx).Do()
	return err
}

// Send submits a base64url raw RFC 2822 message. A non-empty threadID makes
// Gmail attach the message to an existing conversation.
func (c *Client) Send(ctx context.Context, raw, threadID string) (string, error) {
	msg := &gmail.Message{Raw: raw}
	if threadID != "" {
		msg.ThreadId = threadID
	}
	sent, err := c.svc.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, nil
}

// GetAttachmentBody fetches an attachment body by id and returns its decoded
// bytes. Bodies larger than MaxAttachmentSize are rejected.
func (c *Client) GetAttachmentBody(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.svc.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}
	if att.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds the %d byte limit", att.Size, MaxAttachmentSize)
	}
	data, err := decodeBase64(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// HeaderValue returns the value of the named header from a message's payload,
// or an empty string if absent.
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

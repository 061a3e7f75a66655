package mailing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/unisend/mailgate/internal/accounts"
	"github.com/unisend/mailgate/internal/gmail"
	"github.com/unisend/mailgate/internal/logging"
)

// mailClient is the provider surface the service needs per request.
// *gmail.Client satisfies it; tests substitute fakes.
type mailClient interface {
	ListMessageIDs(ctx context.Context, labelID, query, pageToken string, maxResults int64) ([]string, string, error)
	GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	MarkSpam(ctx context.Context, messageID string) error
	Send(ctx context.Context, raw, threadID string) (string, error)
	GetAttachmentBody(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// ListResult is a page of message summaries plus the provider cursor for the
// next page. After post-filtering a page may hold fewer than the page size.
type ListResult struct {
	Messages      []gmail.MessageSummary `json:"messages"`
	NextPageToken string                 `json:"nextPageToken,omitempty"`
}

// SendRequest describes an outgoing message. Mode "reply" with a ThreadID
// attaches the message to an existing conversation.
type SendRequest struct {
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string
	Mode     string
	ThreadID string
	Theme    string
}

// ReplyRequest describes a reply to an existing message. Sender overrides the
// recipient; when empty the original From header is used. Files are split
// into inline images and regular attachments during MIME construction.
type ReplyRequest struct {
	MessageID string
	Body      string
	Sender    string
	Files     []gmail.FilePart
}

// ForwardRequest describes forwarding an existing message to a new recipient.
type ForwardRequest struct {
	MessageID string
	To        string
}

// Service is the application layer behind the mailing endpoints. All provider
// calls go through the runner so an expired access token is refreshed and the
// call retried once.
type Service struct {
	store  accounts.Store
	runner *Runner
	logger *slog.Logger

	newClient func(ctx context.Context, accessToken string) (mailClient, error)
}

// NewService wires the service to its collaborators.
func NewService(store accounts.Store, runner *Runner, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		runner: runner,
		logger: logger,
		newClient: func(ctx context.Context, accessToken string) (mailClient, error) {
			return gmail.NewClient(ctx, accessToken)
		},
	}
}

func (s *Service) account(ctx context.Context, userID, email string) (*accounts.EmailAccount, error) {
	return s.store.FindAccount(ctx, userID, email)
}

// List returns one page of message summaries for the given category and
// filters. Details for the page are fetched concurrently; a single failed
// detail fetch fails the whole page. A page with zero provider results maps
// to ErrNoMessages; a page emptied by post-filtering does not, so the caller
// keeps the cursor and can continue paging.
func (s *Service) List(ctx context.Context, userID, email, category, pageToken string, filters gmail.Filters) (*ListResult, error) {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	var result *ListResult
	err = s.runner.Do(ctx, account, "list", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}

		ids, nextPageToken, err := client.ListMessageIDs(ctx, gmail.CategoryLabel(category), filters.BuildQuery(), pageToken, gmail.DefaultPageSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNoMessages
		}

		summaries := make([]gmail.MessageSummary, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range ids {
			i, id := i, id
			g.Go(func() error {
				msg, err := client.GetMessage(gctx, id)
				if err != nil {
					return err
				}
				summaries[i] = gmail.ExtractSummary(msg)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		result = &ListResult{
			Messages:      filters.PostFilter(summaries),
			NextPageToken: nextPageToken,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "listed messages",
		logging.Operation("list"),
		logging.UserHash(email),
		slog.Int("count", len(result.Messages)))
	return result, nil
}

// Get returns the full detail of one message. Viewing an unread message
// clears its UNREAD label, so a second fetch reports it as read.
func (s *Service) Get(ctx context.Context, userID, email, messageID string) (*gmail.MessageDetail, error) {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	var detail *gmail.MessageDetail
	err = s.runner.Do(ctx, account, "get", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}

		msg, err := client.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		d := gmail.ExtractDetail(msg)
		if d.IsUnread {
			if err := client.MarkRead(ctx, messageID); err != nil {
				return err
			}
		}
		detail = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Send wraps the body in the themed HTML envelope and submits it. Reply mode
// attaches the message to the given thread.
func (s *Service) Send(ctx context.Context, userID, email string, req SendRequest) (string, error) {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return "", err
	}

	threadID := ""
	if req.Mode == "reply" {
		threadID = req.ThreadID
	}

	var messageID string
	err = s.runner.Do(ctx, account, "send", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}

		wrapped := gmail.WrapHTMLBody(req.Body, req.Theme)
		raw := gmail.BuildRawMessage(account.Email, req.To, req.Cc, req.Bcc, req.Subject, wrapped)
		id, err := client.Send(ctx, raw, threadID)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "message sent",
		logging.Operation("send"),
		logging.UserHash(email))
	return messageID, nil
}

// Reply answers an existing message, embedding uploaded images inline and
// attaching other files. The combined upload size is capped before any
// provider call is made.
func (s *Service) Reply(ctx context.Context, userID, email string, req ReplyRequest) error {
	if gmail.TotalSize(req.Files) > gmail.MaxAttachmentSize {
		return ErrAttachmentsTooLarge
	}

	account, err := s.account(ctx, userID, email)
	if err != nil {
		return err
	}

	return s.runner.Do(ctx, account, "reply", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}

		original, err := client.GetMessage(ctx, req.MessageID)
		if err != nil {
			return fmt.Errorf("failed to get original message: %w", err)
		}

		to := req.Sender
		if to == "" {
			to = gmail.HeaderValue(original, "From")
		}
		if to == "" {
			return fmt.Errorf("original message has no From header")
		}
		subject := gmail.HeaderValue(original, "Subject")
		inReplyTo := gmail.HeaderValue(original, "Message-ID")

		raw := gmail.BuildReplyMessage(account.Email, to, subject, inReplyTo, req.Body, req.Files)
		_, err = client.Send(ctx, raw, original.ThreadId)
		return err
	})
}

// Forward re-sends an existing message to a new recipient with the usual
// quoted header block above the original body.
func (s *Service) Forward(ctx context.Context, userID, email string, req ForwardRequest) (string, error) {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return "", err
	}

	var messageID string
	err = s.runner.Do(ctx, account, "forward", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}

		original, err := client.GetMessage(ctx, req.MessageID)
		if err != nil {
			return fmt.Errorf("failed to get original message: %w", err)
		}
		detail := gmail.ExtractDetail(original)

		body := detail.HTMLBody
		if body == "" {
			body = strings.ReplaceAll(detail.TextBody, "\n", "<br>")
		}

		raw := gmail.BuildForwardMessage(
			account.Email, req.To, detail.Subject,
			detail.From, gmail.HeaderValue(original, "To"), detail.Date, body,
		)
		id, err := client.Send(ctx, raw, "")
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// MarkSpam moves a message to the spam folder.
func (s *Service) MarkSpam(ctx context.Context, userID, email, messageID string) error {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return err
	}

	return s.runner.Do(ctx, account, "spam", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}
		return client.MarkSpam(ctx, messageID)
	})
}

// Attachment fetches one attachment body on demand.
func (s *Service) Attachment(ctx context.Context, userID, email, messageID, attachmentID string) ([]byte, error) {
	account, err := s.account(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.runner.Do(ctx, account, "attachment", func(ctx context.Context, accessToken string) error {
		client, err := s.newClient(ctx, accessToken)
		if err != nil {
			return err
		}
		b, err := client.GetAttachmentBody(ctx, messageID, attachmentID)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

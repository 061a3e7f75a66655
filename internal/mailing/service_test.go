package mailing

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/unisend/mailgate/internal/accounts"
	"github.com/unisend/mailgate/internal/gmail"
	"github.com/unisend/mailgate/internal/instrumentation"
)

type fakeStore struct {
	accounts map[string]*accounts.EmailAccount
}

func newFakeStore(accts ...*accounts.EmailAccount) *fakeStore {
	s := &fakeStore{accounts: make(map[string]*accounts.EmailAccount)}
	for _, a := range accts {
		s.accounts[a.UserID+"/"+a.Email] = a
	}
	return s
}

func (s *fakeStore) FindAccount(ctx context.Context, userID, email string) (*accounts.EmailAccount, error) {
	if a, ok := s.accounts[userID+"/"+email]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, accounts.ErrNotFound
}

func (s *fakeStore) UpsertAccount(ctx context.Context, account accounts.EmailAccount) error {
	s.accounts[account.UserID+"/"+account.Email] = &account
	return nil
}

func (s *fakeStore) UpdateAccessToken(ctx context.Context, userID, email, newToken string) error {
	if a, ok := s.accounts[userID+"/"+email]; ok {
		a.AccessToken = newToken
	}
	return nil
}

func (s *fakeStore) SetPrincipal(ctx context.Context, userID, email string) error { return nil }

func (s *fakeStore) DeleteAccount(ctx context.Context, userID, email string) error {
	delete(s.accounts, userID+"/"+email)
	return nil
}

func (s *fakeStore) IsFirstAccountForUser(ctx context.Context, userID string) (bool, error) {
	for key := range s.accounts {
		if len(key) > len(userID) && key[:len(userID)] == userID {
			return false, nil
		}
	}
	return true, nil
}

func (s *fakeStore) ListAccounts(ctx context.Context, userID string) ([]accounts.EmailAccount, error) {
	var out []accounts.EmailAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeClient struct {
	messages      map[string]*gmailapi.Message
	listIDs       []string
	nextPageToken string
	listErr       error

	markedRead []string
	markedSpam []string
	sentRaw    []string
	sentThread []string
	sendID     string

	attachmentData []byte
}

func (c *fakeClient) ListMessageIDs(ctx context.Context, labelID, query, pageToken string, maxResults int64) ([]string, string, error) {
	if c.listErr != nil {
		return nil, "", c.listErr
	}
	return c.listIDs, c.nextPageToken, nil
}

func (c *fakeClient) GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error) {
	msg, ok := c.messages[messageID]
	if !ok {
		return nil, assert.AnError
	}
	return msg, nil
}

func (c *fakeClient) MarkRead(ctx context.Context, messageID string) error {
	c.markedRead = append(c.markedRead, messageID)
	return nil
}

func (c *fakeClient) MarkSpam(ctx context.Context, messageID string) error {
	c.markedSpam = append(c.markedSpam, messageID)
	return nil
}

func (c *fakeClient) Send(ctx context.Context, raw, threadID string) (string, error) {
	c.sentRaw = append(c.sentRaw, raw)
	c.sentThread = append(c.sentThread, threadID)
	if c.sendID == "" {
		return "sent-id", nil
	}
	return c.sendID, nil
}

func (c *fakeClient) GetAttachmentBody(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	return c.attachmentData, nil
}

func testMessage(id string, labels []string, headers map[string]string, body string) *gmailapi.Message {
	var hdrs []*gmailapi.MessagePartHeader
	for name, value := range headers {
		hdrs = append(hdrs, &gmailapi.MessagePartHeader{Name: name, Value: value})
	}
	return &gmailapi.Message{
		Id:       id,
		ThreadId: "thread-" + id,
		LabelIds: labels,
		Snippet:  body,
		Payload: &gmailapi.MessagePart{
			Headers: hdrs,
			Parts: []*gmailapi.MessagePart{
				{
					MimeType: "text/plain",
					Body:     &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
				},
			},
		},
	}
}

func newTestService(client *fakeClient, accts ...*accounts.EmailAccount) (*Service, *fakeStore) {
	store := newFakeStore(accts...)
	runner := NewRunner(&fakeRefresher{token: "fresh"}, store, &instrumentation.Metrics{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := NewService(store, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.newClient = func(ctx context.Context, accessToken string) (mailClient, error) {
		return client, nil
	}
	return svc, store
}

func TestServiceList(t *testing.T) {
	client := &fakeClient{
		listIDs:       []string{"m1", "m2"},
		nextPageToken: "next-cursor",
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", []string{"UNREAD", "INBOX"}, map[string]string{"From": "a@x.com", "Subject": "Uno"}, "primer mensaje"),
			"m2": testMessage("m2", []string{"INBOX"}, map[string]string{"From": "b@x.com", "Subject": "Dos"}, "segundo mensaje"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	result, err := svc.List(context.Background(), "user-1", "user@gmail.com", "Primary", "", gmail.Filters{})
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "m1", result.Messages[0].ID)
	assert.True(t, result.Messages[0].IsUnread)
	assert.Equal(t, "Uno", result.Messages[0].Subject)
	assert.Equal(t, "next-cursor", result.NextPageToken)
}

func TestServiceList_NoMessages(t *testing.T) {
	svc, _ := newTestService(&fakeClient{}, testAccount())

	_, err := svc.List(context.Background(), "user-1", "user@gmail.com", "Social", "", gmail.Filters{UnreadOnly: true})
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestServiceList_PostFilterEmptiesPageKeepsCursor(t *testing.T) {
	client := &fakeClient{
		listIDs:       []string{"m1"},
		nextPageToken: "page-2",
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", []string{"INBOX"}, map[string]string{"From": "a@x.com", "Subject": "Sin adjunto"}, "cuerpo"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	result, err := svc.List(context.Background(), "user-1", "user@gmail.com", "Primary", "", gmail.Filters{HasAttachment: true})
	require.NoError(t, err)

	// Later pages may still match, so an emptied page is returned as-is with
	// the provider cursor intact.
	assert.Empty(t, result.Messages)
	assert.Equal(t, "page-2", result.NextPageToken)
}

func TestServiceList_AccountNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeClient{})

	_, err := svc.List(context.Background(), "user-1", "missing@gmail.com", "Primary", "", gmail.Filters{})
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestServiceGet_MarksUnreadAsRead(t *testing.T) {
	client := &fakeClient{
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", []string{"UNREAD"}, map[string]string{"From": "a@x.com", "Subject": "Hola"}, "cuerpo"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	detail, err := svc.Get(context.Background(), "user-1", "user@gmail.com", "m1")
	require.NoError(t, err)

	assert.True(t, detail.IsUnread)
	assert.Equal(t, "cuerpo", detail.TextBody)
	assert.Equal(t, []string{"m1"}, client.markedRead)
}

func TestServiceGet_ReadMessageLeftAlone(t *testing.T) {
	client := &fakeClient{
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", nil, map[string]string{"From": "a@x.com", "Subject": "Hola"}, "cuerpo"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	detail, err := svc.Get(context.Background(), "user-1", "user@gmail.com", "m1")
	require.NoError(t, err)

	assert.False(t, detail.IsUnread)
	assert.Empty(t, client.markedRead)
}

func TestServiceSend(t *testing.T) {
	client := &fakeClient{sendID: "new-msg"}
	svc, _ := newTestService(client, testAccount())

	id, err := svc.Send(context.Background(), "user-1", "user@gmail.com", SendRequest{
		To:      "dest@example.com",
		Subject: "Hola",
		Body:    "<p>mensaje</p>",
		Theme:   "dark",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-msg", id)

	require.Len(t, client.sentRaw, 1)
	assert.Empty(t, client.sentThread[0], "plain send carries no thread id")

	decoded, err := base64.RawURLEncoding.DecodeString(client.sentRaw[0])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "From: user@gmail.com")
	assert.Contains(t, string(decoded), "To: dest@example.com")
}

func TestServiceSend_ReplyModeKeepsThread(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(client, testAccount())

	_, err := svc.Send(context.Background(), "user-1", "user@gmail.com", SendRequest{
		To:       "dest@example.com",
		Subject:  "Re: Hola",
		Body:     "respuesta",
		Mode:     "reply",
		ThreadID: "thread-9",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"thread-9"}, client.sentThread)
}

func TestServiceReply(t *testing.T) {
	client := &fakeClient{
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", nil, map[string]string{
				"From":       "sender@example.com",
				"Subject":    "Consulta",
				"Message-ID": "<orig@mail>",
			}, "pregunta"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	err := svc.Reply(context.Background(), "user-1", "user@gmail.com", ReplyRequest{
		MessageID: "m1",
		Body:      "respuesta",
	})
	require.NoError(t, err)

	require.Len(t, client.sentRaw, 1)
	assert.Equal(t, "thread-m1", client.sentThread[0])

	decoded, err := base64.RawURLEncoding.DecodeString(client.sentRaw[0])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: sender@example.com")
	assert.Contains(t, string(decoded), "Subject: Re: Consulta")
	assert.Contains(t, string(decoded), "In-Reply-To: <orig@mail>")
}

func TestServiceReply_AttachmentsTooLarge(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(client, testAccount())

	err := svc.Reply(context.Background(), "user-1", "user@gmail.com", ReplyRequest{
		MessageID: "m1",
		Body:      "respuesta",
		Files: []gmail.FilePart{
			{Filename: "huge.bin", MimeType: "application/octet-stream", Data: make([]byte, gmail.MaxAttachmentSize+1)},
		},
	})

	assert.ErrorIs(t, err, ErrAttachmentsTooLarge)
	assert.Empty(t, client.sentRaw, "oversized uploads are rejected before any provider call")
}

func TestServiceMarkSpam(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(client, testAccount())

	err := svc.MarkSpam(context.Background(), "user-1", "user@gmail.com", "m7")
	require.NoError(t, err)
	assert.Equal(t, []string{"m7"}, client.markedSpam)
}

func TestServiceForward(t *testing.T) {
	client := &fakeClient{
		messages: map[string]*gmailapi.Message{
			"m1": testMessage("m1", nil, map[string]string{
				"From":    "orig@example.com",
				"To":      "user@gmail.com",
				"Subject": "Notas",
				"Date":    "Fri, 15 Mar 2024 09:30:00 +0000",
			}, "contenido"),
		},
	}
	svc, _ := newTestService(client, testAccount())

	id, err := svc.Forward(context.Background(), "user-1", "user@gmail.com", ForwardRequest{
		MessageID: "m1",
		To:        "friend@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-id", id)

	decoded, err := base64.RawURLEncoding.DecodeString(client.sentRaw[0])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: friend@example.com")
	assert.Contains(t, string(decoded), "Subject: Fwd: Notas")
}

func TestServiceAttachment(t *testing.T) {
	client := &fakeClient{attachmentData: []byte("file-bytes")}
	svc, _ := newTestService(client, testAccount())

	data, err := svc.Attachment(context.Background(), "user-1", "user@gmail.com", "m1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("file-bytes"), data)
}

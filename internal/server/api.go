package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/unisend/mailgate/internal/accounts"
	"github.com/unisend/mailgate/internal/gmail"
	"github.com/unisend/mailgate/internal/google"
	"github.com/unisend/mailgate/internal/instrumentation"
	"github.com/unisend/mailgate/internal/logging"
	"github.com/unisend/mailgate/internal/mailing"
)

// User-facing error messages. The API is consumed by a Spanish-language UI.
const (
	msgMissingParams       = "Faltan datos requeridos"
	msgMissingReplyParams  = "Faltan datos obligatorios"
	msgAccountNotFound     = "Cuenta de correo no encontrada"
	msgNoMessages          = "No se encontraron mensajes"
	msgAttachmentsTooLarge = "El tamaño total de los archivos adjuntos excede los 25 MB"
	msgRefreshFailed       = "Error al refrescar el token de acceso"
)

// MailService is the application surface the handlers call.
// *mailing.Service satisfies it.
type MailService interface {
	List(ctx context.Context, userID, email, category, pageToken string, filters gmail.Filters) (*mailing.ListResult, error)
	Get(ctx context.Context, userID, email, messageID string) (*gmail.MessageDetail, error)
	Send(ctx context.Context, userID, email string, req mailing.SendRequest) (string, error)
	Reply(ctx context.Context, userID, email string, req mailing.ReplyRequest) error
	Forward(ctx context.Context, userID, email string, req mailing.ForwardRequest) (string, error)
	MarkSpam(ctx context.Context, userID, email, messageID string) error
	Attachment(ctx context.Context, userID, email, messageID, attachmentID string) ([]byte, error)
}

// OAuthBroker is the subset of the Google OAuth flow the handlers need.
type OAuthBroker interface {
	AuthCodeURL(userID string) string
	Exchange(ctx context.Context, code string) (*google.Grant, error)
}

// API holds the HTTP handlers for the mailing and account endpoints.
type API struct {
	mail     MailService
	store    accounts.Store
	broker   OAuthBroker
	setupURL string
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewAPI wires the handlers to their collaborators. setupURL is where the
// OAuth callback redirects the browser after linking a mailbox.
func NewAPI(mail MailService, store accounts.Store, broker OAuthBroker, setupURL string, logger *slog.Logger, metrics *instrumentation.Metrics) *API {
	return &API{
		mail:     mail,
		store:    store,
		broker:   broker,
		setupURL: setupURL,
		logger:   logger,
		metrics:  metrics,
	}
}

// Routes returns the API handler with all endpoints registered.
func (a *API) Routes(health *HealthChecker) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/mailing/list", a.instrument("/api/mailing/list", a.handleList))
	mux.Handle("GET /api/mailing/single", a.instrument("/api/mailing/single", a.handleSingle))
	mux.Handle("POST /api/mailing/send", a.instrument("/api/mailing/send", a.handleSend))
	mux.Handle("POST /api/mailing/reply", a.instrument("/api/mailing/reply", a.handleReply))
	mux.Handle("POST /api/mailing/spam", a.instrument("/api/mailing/spam", a.handleSpam))
	mux.Handle("POST /api/mailing/forward", a.instrument("/api/mailing/forward", a.handleForward))
	mux.Handle("GET /api/mailing/attachment", a.instrument("/api/mailing/attachment", a.handleAttachment))

	mux.Handle("GET /api/auth/google/url", a.instrument("/api/auth/google/url", a.handleAuthURL))
	mux.Handle("GET /api/auth/callback/google", a.instrument("/api/auth/callback/google", a.handleAuthCallback))

	mux.Handle("GET /api/accounts", a.instrument("/api/accounts", a.handleListAccounts))
	mux.Handle("POST /api/accounts/principal", a.instrument("/api/accounts/principal", a.handleSetPrincipal))
	mux.Handle("DELETE /api/accounts", a.instrument("/api/accounts", a.handleDeleteAccount))

	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}
	return mux
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) instrument(path string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)
		a.metrics.RecordHTTPRequest(r.Context(), r.Method, path, rec.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeMappedError converts domain errors to their HTTP status and Spanish
// message; anything unrecognized becomes a 500 with the given fallback.
func (a *API) writeMappedError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var refreshErr *google.RefreshError
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		writeError(w, http.StatusBadRequest, msgAccountNotFound)
	case errors.Is(err, mailing.ErrNoMessages):
		writeError(w, http.StatusNotFound, msgNoMessages)
	case errors.Is(err, mailing.ErrAttachmentsTooLarge):
		writeError(w, http.StatusBadRequest, msgAttachmentsTooLarge)
	case errors.As(err, &refreshErr):
		writeError(w, http.StatusInternalServerError, msgRefreshFailed)
	default:
		a.logger.ErrorContext(r.Context(), "request failed",
			logging.Endpoint(r.URL.Path),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func parseFilters(q url.Values) gmail.Filters {
	filters := gmail.Filters{
		UnreadOnly:    q.Get("f") == "true",
		HasAttachment: q.Get("hasAttachment") == "true",
		IsImportant:   q.Get("isImportant") == "true",
		Query:         q.Get("q"),
	}
	if d := q.Get("date"); d != "" {
		if parsed, err := time.Parse("2006-01-02", d); err == nil {
			filters.Date = parsed
		}
	}
	return filters
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userid")
	email := q.Get("email")
	if userID == "" || email == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	result, err := a.mail.List(r.Context(), userID, email, q.Get("category"), q.Get("pageToken"), parseFilters(q))
	if err != nil {
		a.writeMappedError(w, r, err, "Error al listar correos")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSingle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userid")
	email := q.Get("email")
	messageID := q.Get("messageId")
	if userID == "" || email == "" || messageID == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	detail, err := a.mail.Get(r.Context(), userID, email, messageID)
	if err != nil {
		a.writeMappedError(w, r, err, "Error al obtener detalles del correo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": detail})
}

type sendPayload struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	To       string `json:"to"`
	Cc       string `json:"cc"`
	Bcc      string `json:"bcc"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Mode     string `json:"mode"`
	ThreadID string `json:"threadId"`
	Theme    string `json:"theme"`
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload sendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	if payload.UserID == "" || payload.Email == "" || payload.To == "" || payload.Subject == "" || payload.Body == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	messageID, err := a.mail.Send(r.Context(), payload.UserID, payload.Email, mailing.SendRequest{
		To:       payload.To,
		Cc:       payload.Cc,
		Bcc:      payload.Bcc,
		Subject:  payload.Subject,
		Body:     payload.Body,
		Mode:     payload.Mode,
		ThreadID: payload.ThreadID,
		Theme:    payload.Theme,
	})
	if err != nil {
		a.writeMappedError(w, r, err, "Error al enviar el correo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
}

func (a *API) handleReply(w http.ResponseWriter, r *http.Request) {
	// Cap the request body at the attachment limit plus headroom for the
	// text fields and multipart framing. The service re-checks the decoded
	// file sizes against the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, gmail.MaxAttachmentSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, msgAttachmentsTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgMissingReplyParams)
		return
	}

	messageID := r.FormValue("emailId")
	userID := r.FormValue("userId")
	body := r.FormValue("replyBody")
	email := r.FormValue("email")
	sender := r.FormValue("sender")
	if messageID == "" || userID == "" || body == "" {
		writeError(w, http.StatusBadRequest, msgMissingReplyParams)
		return
	}

	var files []gmail.FilePart
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["attachments"] {
			f, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, msgMissingReplyParams)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, msgMissingReplyParams)
				return
			}
			files = append(files, gmail.FilePart{
				Filename: header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Data:     data,
			})
		}
	}

	err := a.mail.Reply(r.Context(), userID, email, mailing.ReplyRequest{
		MessageID: messageID,
		Body:      body,
		Sender:    sender,
		Files:     files,
	})
	if err != nil {
		a.writeMappedError(w, r, err, "Error en el procesamiento del correo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Correo respondido con éxito"})
}

type spamPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	MessageID string `json:"messageId"`
}

func (a *API) handleSpam(w http.ResponseWriter, r *http.Request) {
	var payload spamPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	if payload.UserID == "" || payload.Email == "" || payload.MessageID == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	if err := a.mail.MarkSpam(r.Context(), payload.UserID, payload.Email, payload.MessageID); err != nil {
		a.writeMappedError(w, r, err, "Error al marcar el correo como spam")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Correo marcado como spam"})
}

type forwardPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

func (a *API) handleForward(w http.ResponseWriter, r *http.Request) {
	var payload forwardPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	if payload.UserID == "" || payload.Email == "" || payload.MessageID == "" || payload.To == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	messageID, err := a.mail.Forward(r.Context(), payload.UserID, payload.Email, mailing.ForwardRequest{
		MessageID: payload.MessageID,
		To:        payload.To,
	})
	if err != nil {
		a.writeMappedError(w, r, err, "Error al reenviar el correo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
}

func (a *API) handleAttachment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userid")
	email := q.Get("email")
	messageID := q.Get("messageId")
	attachmentID := q.Get("attachmentId")
	if userID == "" || email == "" || messageID == "" || attachmentID == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	data, err := a.mail.Attachment(r.Context(), userID, email, messageID, attachmentID)
	if err != nil {
		a.writeMappedError(w, r, err, "Error al obtener el archivo adjunto")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":    a.broker.AuthCodeURL(userID),
		"userId": userID,
	})
}

// handleAuthCallback completes the OAuth link flow. The state parameter
// carries the user id that initiated the flow. The browser always ends up on
// the setup page; failures only flip the success flag.
func (a *API) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	userID := q.Get("state")
	if code == "" || userID == "" {
		a.redirectSetup(w, r, false)
		return
	}

	grant, err := a.broker.Exchange(r.Context(), code)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "oauth code exchange failed",
			logging.Operation("oauth_callback"),
			logging.Err(err))
		a.metrics.RecordOAuthLink(r.Context(), instrumentation.StatusError)
		a.redirectSetup(w, r, false)
		return
	}

	isFirst, err := a.store.IsFirstAccountForUser(r.Context(), userID)
	if err != nil {
		a.redirectSetup(w, r, false)
		return
	}

	account := accounts.EmailAccount{
		UserID:       userID,
		Email:        grant.Email,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Status:       accounts.StatusVerified,
		Principal:    isFirst,
	}
	if err := a.store.UpsertAccount(r.Context(), account); err != nil {
		a.logger.ErrorContext(r.Context(), "failed to persist linked account",
			logging.Operation("oauth_callback"),
			logging.UserHash(grant.Email),
			logging.Err(err))
		a.metrics.RecordOAuthLink(r.Context(), instrumentation.StatusError)
		a.redirectSetup(w, r, false)
		return
	}

	a.logger.InfoContext(r.Context(), "mailbox linked",
		logging.Operation("oauth_callback"),
		logging.UserHash(grant.Email),
		slog.Bool("principal", isFirst))
	a.metrics.RecordOAuthLink(r.Context(), instrumentation.StatusSuccess)
	a.redirectSetup(w, r, true)
}

func (a *API) redirectSetup(w http.ResponseWriter, r *http.Request, success bool) {
	target, err := url.Parse(a.setupURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error de configuración")
		return
	}
	q := target.Query()
	if success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userid")
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	accts, err := a.store.ListAccounts(r.Context(), userID)
	if err != nil {
		a.writeMappedError(w, r, err, "Error al listar las cuentas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accts})
}

type principalPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func (a *API) handleSetPrincipal(w http.ResponseWriter, r *http.Request) {
	var payload principalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	if payload.UserID == "" || payload.Email == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	if err := a.store.SetPrincipal(r.Context(), payload.UserID, payload.Email); err != nil {
		a.writeMappedError(w, r, err, "Error al actualizar la cuenta principal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cuenta principal actualizada"})
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userid")
	email := q.Get("email")
	if userID == "" || email == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	if err := a.store.DeleteAccount(r.Context(), userID, email); err != nil {
		a.writeMappedError(w, r, err, "Error al eliminar la cuenta")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cuenta eliminada"})
}

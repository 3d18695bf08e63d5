// Package inquiry runs the email triage pipeline: fetch new mail for a
// connection, classify it, store business inquiries, notify the owner and
// optionally auto-reply with their rates.
package inquiry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/ai"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/mailbox"
	"github.com/nikhil/creatortent/internal/metrics"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

var (
	// ErrForbidden is returned when a user acts on someone else's connection or inquiry.
	ErrForbidden = errors.New("not allowed")
	// ErrInactive is returned when syncing a disabled connection.
	ErrInactive = errors.New("email connection is inactive")
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetConnection(ctx context.Context, id string) (*models.EmailConnection, error)
	UpdateConnectionTokens(ctx context.Context, id, accessToken, refreshToken string, expiry int64) error
	SetConnectionActive(ctx context.Context, id string, active bool) error
	SetLastSynced(ctx context.Context, id string, at int64) error
	InquiryExists(ctx context.Context, connectionID, messageID string) (bool, error)
	CreateInquiry(ctx context.Context, inq *models.EmailInquiry) error
	GetInquiry(ctx context.Context, id string) (*models.EmailInquiry, error)
	MarkInquiryReplied(ctx context.Context, id string, auto bool) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListRates(ctx context.Context, userID string) ([]models.UserRate, error)
}

// Mailboxes opens provider mailboxes and refreshes OAuth tokens.
type Mailboxes interface {
	Open(ctx context.Context, acct mailbox.Account) (mailbox.Mailbox, error)
	Refresh(ctx context.Context, provider string, tok *oauth2.Token) (*oauth2.Token, bool, error)
}

// Assistant classifies messages and polishes reply drafts.
type Assistant interface {
	Classify(ctx context.Context, msg models.InboundMessage) (ai.Analysis, error)
	PolishReply(ctx context.Context, draft, summary string) (string, error)
}

// Notifier stores and pushes a notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Cipher seals and opens stored credentials.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(sealed string) (string, error)
}

// Result summarises one sync pass.
type Result struct {
	ConnectionID     string `json:"connection_id"`
	Fetched          int    `json:"fetched"`
	Skipped          int    `json:"skipped"`
	Inquiries        int    `json:"inquiries"`
	AutoReplies      int    `json:"auto_replies"`
	AnalysisFailures int    `json:"analysis_failures"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	store     Store
	mailboxes Mailboxes
	assistant Assistant
	prompts   *ai.Prompts
	notifier  Notifier
	cipher    Cipher
	metrics   *metrics.Metrics
	log       *logger.Logger

	lookback time.Duration
	now      func() time.Time
}

// New builds a Pipeline. lookback bounds the first fetch of a connection
// that has never synced.
func New(st Store, mailboxes Mailboxes, assistant Assistant, prompts *ai.Prompts, notifier Notifier, cipher Cipher, m *metrics.Metrics, lookback time.Duration) *Pipeline {
	return &Pipeline{
		store:     st,
		mailboxes: mailboxes,
		assistant: assistant,
		prompts:   prompts,
		notifier:  notifier,
		cipher:    cipher,
		metrics:   m,
		log:       logger.NewLogger("inquiry-pipeline"),
		lookback:  lookback,
		now:       time.Now,
	}
}

// SyncByID syncs one of userID's connections on demand.
func (p *Pipeline) SyncByID(ctx context.Context, userID, connectionID string) (Result, error) {
	conn, err := p.store.GetConnection(ctx, connectionID)
	if err != nil {
		return Result{}, err
	}
	if conn.UserID != userID {
		return Result{}, ErrForbidden
	}
	if !conn.IsActive {
		return Result{}, ErrInactive
	}
	return p.SyncConnection(ctx, *conn)
}

// SyncConnection runs one pass over conn. Message-level failures are
// collected into the returned error; last_synced_at only advances when every
// message was handled, so the next pass retries the rest.
func (p *Pipeline) SyncConnection(ctx context.Context, conn models.EmailConnection) (res Result, err error) {
	res.ConnectionID = conn.ID
	log := p.log.WithConnection(conn.ID, conn.Provider).WithUser(conn.UserID)
	started := p.now().UTC()
	defer func() { p.metrics.RecordSync(conn.Provider, err == nil) }()

	mb, err := p.open(ctx, conn)
	if err != nil {
		return res, p.connectionFailed(ctx, conn, log, err)
	}

	since := started.Add(-p.lookback)
	if conn.LastSyncedAt != nil {
		since = time.Unix(*conn.LastSyncedAt, 0).UTC()
	}
	msgs, err := mb.FetchSince(ctx, since, mailbox.FetchPageSize)
	p.metrics.RecordMessagesFetched(conn.Provider, len(msgs))
	res.Fetched = len(msgs)
	if err != nil {
		return res, p.connectionFailed(ctx, conn, log, fmt.Errorf("fetch messages: %w", err))
	}

	var errs error
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		errs = multierr.Append(errs, p.handleMessage(ctx, mb, conn, msg, &res, log))
	}
	if errs != nil {
		log.Warn("Sync finished with errors", "fetched", res.Fetched, "inquiries", res.Inquiries, "error", errs)
		return res, errs
	}

	if err := p.store.SetLastSynced(ctx, conn.ID, started.Unix()); err != nil {
		return res, err
	}
	log.Info("Sync finished", "fetched", res.Fetched, "skipped", res.Skipped,
		"inquiries", res.Inquiries, "auto_replies", res.AutoReplies)
	return res, nil
}

func (p *Pipeline) handleMessage(ctx context.Context, mb mailbox.Mailbox, conn models.EmailConnection, msg models.InboundMessage, res *Result, log *logger.Logger) error {
	if msg.MessageID == "" || msg.FromEmail == "" || strings.EqualFold(msg.FromEmail, conn.EmailAddress) {
		res.Skipped++
		return nil
	}

	exists, err := p.store.InquiryExists(ctx, conn.ID, msg.MessageID)
	if err != nil {
		return err
	}
	if exists {
		res.Skipped++
		return nil
	}

	analysis, err := p.assistant.Classify(ctx, msg)
	if err != nil {
		res.AnalysisFailures++
		p.metrics.RecordAnalysisFailure()
		log.Warn("Classification failed, using default analysis", "message_id", msg.MessageID, "error", err)
	}
	if !analysis.IsBusinessInquiry {
		return nil
	}

	received := msg.ReceivedAt
	if received.IsZero() {
		received = p.now()
	}
	inq := &models.EmailInquiry{
		ConnectionID:      conn.ID,
		UserID:            conn.UserID,
		TentID:            conn.TentID,
		MessageID:         msg.MessageID,
		ThreadID:          msg.ThreadID,
		FromEmail:         msg.FromEmail,
		FromName:          msg.FromName,
		Subject:           msg.Subject,
		Snippet:           msg.Snippet,
		ReceivedAt:        received.Unix(),
		IsBusinessInquiry: true,
		Confidence:        analysis.Confidence,
		InquiryType:       analysis.InquiryType,
		BrandName:         analysis.BrandName,
		Budget:            analysis.Budget,
		Summary:           analysis.Summary,
		Status:            models.InquiryNew,
	}
	if err := p.store.CreateInquiry(ctx, inq); err != nil {
		if errors.Is(err, store.ErrConflict) {
			res.Skipped++
			return nil
		}
		return err
	}
	res.Inquiries++
	p.metrics.RecordInquiry(inq.InquiryType)

	p.notify(ctx, models.Notification{
		UserID: conn.UserID,
		TentID: conn.TentID,
		Type:   models.NotifyNewInquiry,
		Title:  fmt.Sprintf("New %s inquiry from %s", inq.InquiryType, sender(inq)),
		Body:   inq.Summary,
	}, log)

	if conn.AutoReplyEnabled {
		sent, err := p.autoReply(ctx, mb, conn, inq)
		if err != nil {
			log.Warn("Auto-reply failed", "inquiry_id", inq.ID, "error", err)
		}
		if sent {
			res.AutoReplies++
		}
	}
	return nil
}

// autoReply answers inq with the owner's rates. Nothing is sent when the
// owner has no rates.
func (p *Pipeline) autoReply(ctx context.Context, mb mailbox.Mailbox, conn models.EmailConnection, inq *models.EmailInquiry) (bool, error) {
	rates, err := p.store.ListRates(ctx, conn.UserID)
	if err != nil {
		return false, err
	}
	if len(rates) == 0 {
		return false, nil
	}

	body, err := p.draftReply(ctx, conn.UserID, inq, rates)
	if err != nil {
		return false, err
	}
	body, _ = p.assistant.PolishReply(ctx, body, inq.Summary)

	err = mb.Send(ctx, replyTo(conn, inq, body))
	p.metrics.RecordAutoReply(conn.Provider, err == nil)
	if err != nil {
		return false, err
	}
	if err := p.store.MarkInquiryReplied(ctx, inq.ID, true); err != nil {
		return true, err
	}

	p.notify(ctx, models.Notification{
		UserID: conn.UserID,
		TentID: conn.TentID,
		Type:   models.NotifyAutoReplySent,
		Title:  "Auto-reply sent to " + sender(inq),
		Body:   inq.Subject,
	}, p.log)
	return true, nil
}

// Reply sends a manual reply to one of userID's inquiries. An empty body
// sends the rendered rate template.
func (p *Pipeline) Reply(ctx context.Context, userID, inquiryID, body string) error {
	inq, err := p.store.GetInquiry(ctx, inquiryID)
	if err != nil {
		return err
	}
	if inq.UserID != userID {
		return ErrForbidden
	}
	conn, err := p.store.GetConnection(ctx, inq.ConnectionID)
	if err != nil {
		return err
	}
	if !conn.IsActive {
		return ErrInactive
	}

	if strings.TrimSpace(body) == "" {
		rates, err := p.store.ListRates(ctx, userID)
		if err != nil {
			return err
		}
		if body, err = p.draftReply(ctx, userID, inq, rates); err != nil {
			return err
		}
	}

	mb, err := p.open(ctx, *conn)
	if err != nil {
		return err
	}
	if err := mb.Send(ctx, replyTo(*conn, inq, body)); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return p.store.MarkInquiryReplied(ctx, inq.ID, false)
}

func (p *Pipeline) draftReply(ctx context.Context, userID string, inq *models.EmailInquiry, rates []models.UserRate) (string, error) {
	user, err := p.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.prompts.RenderReply(ai.NewReplyData(*inq, *user, rates))
}

// open decrypts credentials, refreshing and persisting OAuth tokens that
// have expired, and opens the mailbox.
func (p *Pipeline) open(ctx context.Context, conn models.EmailConnection) (mailbox.Mailbox, error) {
	acct := mailbox.Account{Provider: conn.Provider, Email: conn.EmailAddress}

	if conn.IMAPPassword != "" {
		pw, err := p.cipher.Decrypt(conn.IMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt app password: %w", err)
		}
		acct.Password = pw
		return p.mailboxes.Open(ctx, acct)
	}

	access, err := p.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := p.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if conn.TokenExpiry > 0 {
		tok.Expiry = time.Unix(conn.TokenExpiry, 0)
	}

	fresh, changed, err := p.mailboxes.Refresh(ctx, conn.Provider, tok)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := p.saveTokens(ctx, conn.ID, refresh, fresh); err != nil {
			return nil, err
		}
	}
	acct.Token = fresh
	return p.mailboxes.Open(ctx, acct)
}

func (p *Pipeline) saveTokens(ctx context.Context, connectionID, oldRefresh string, tok *oauth2.Token) error {
	access, err := p.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return err
	}
	refresh := ""
	if tok.RefreshToken != "" && tok.RefreshToken != oldRefresh {
		if refresh, err = p.cipher.Encrypt(tok.RefreshToken); err != nil {
			return err
		}
	}
	var expiry int64
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.Unix()
	}
	return p.store.UpdateConnectionTokens(ctx, connectionID, access, refresh, expiry)
}

// connectionFailed disables a connection whose credentials were rejected
// and tells its owner to reconnect.
func (p *Pipeline) connectionFailed(ctx context.Context, conn models.EmailConnection, log *logger.Logger, err error) error {
	if !errors.Is(err, mailbox.ErrAuthFailed) {
		log.Error("Sync failed", "error", err)
		return err
	}

	log.Warn("Credentials rejected, disabling connection", "error", err)
	if derr := p.store.SetConnectionActive(ctx, conn.ID, false); derr != nil {
		return multierr.Append(err, derr)
	}
	p.notify(ctx, models.Notification{
		UserID: conn.UserID,
		TentID: conn.TentID,
		Type:   models.NotifyEmailDisabled,
		Title:  "Reconnect " + conn.EmailAddress,
		Body:   "We could not sign in to your mailbox. Connect it again to keep receiving inquiries.",
	}, log)
	return err
}

func (p *Pipeline) notify(ctx context.Context, n models.Notification, log *logger.Logger) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		log.Warn("Failed to notify", "type", n.Type, "error", err)
	}
}

func replyTo(conn models.EmailConnection, inq *models.EmailInquiry, body string) models.OutboundMessage {
	return models.OutboundMessage{
		From:      conn.EmailAddress,
		To:        inq.FromEmail,
		Subject:   mailbox.ReplySubject(inq.Subject),
		Body:      body,
		InReplyTo: inq.MessageID,
		ThreadID:  inq.ThreadID,
	}
}

func sender(inq *models.EmailInquiry) string {
	switch {
	case inq.BrandName != "":
		return inq.BrandName
	case inq.FromName != "":
		return inq.FromName
	}
	return inq.FromEmail
}

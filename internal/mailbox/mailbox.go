// Package mailbox talks to the email providers a creator can connect:
// Gmail and Outlook over their REST APIs, Yahoo over IMAP and SMTP.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/models"
)

// FetchPageSize is how many messages one provider request returns. FetchSince
// keeps requesting pages until the window is exhausted.
const FetchPageSize = 50

const snippetLength = 200

var (
	// ErrAuthFailed means the provider rejected the stored credentials.
	ErrAuthFailed = errors.New("mailbox authentication failed")
	// ErrUnsupportedProvider is returned for providers without an implementation.
	ErrUnsupportedProvider = errors.New("unsupported email provider")
)

// Mailbox reads recent inbound mail and sends replies for one account.
type Mailbox interface {
	// FetchSince returns every inbox message received after since, requesting
	// pageSize messages at a time.
	FetchSince(ctx context.Context, since time.Time, pageSize int) ([]models.InboundMessage, error)
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Account carries decrypted credentials for opening a Mailbox.
type Account struct {
	Provider string
	Email    string
	Token    *oauth2.Token
	Password string
}

// Factory opens mailboxes for stored connections.
type Factory struct {
	providers  map[string]*OAuthProvider
	httpClient *http.Client
	imapAddr   string
	smtpAddr   string

	gmailBase   string
	outlookBase string
	dialIMAP    imapDialer
	dialSMTP    smtpDialer
}

// NewFactory builds a Factory over the configured OAuth providers.
func NewFactory(providers map[string]*OAuthProvider) *Factory {
	return &Factory{
		providers:   providers,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		imapAddr:    YahooIMAPAddr,
		smtpAddr:    YahooSMTPAddr,
		gmailBase:   gmailAPIBase,
		outlookBase: graphAPIBase,
		dialIMAP:    dialIMAPTLS,
		dialSMTP:    dialSMTPTLS,
	}
}

// Provider returns the OAuth provider registered under name.
func (f *Factory) Provider(name string) (*OAuthProvider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedProvider)
	}
	return p, nil
}

// Open returns the Mailbox for acct.
func (f *Factory) Open(ctx context.Context, acct Account) (Mailbox, error) {
	switch acct.Provider {
	case models.ProviderGmail:
		return &gmailMailbox{client: f.oauthClient(ctx, acct.Token), base: f.gmailBase, email: acct.Email}, nil
	case models.ProviderOutlook:
		return &outlookMailbox{client: f.oauthClient(ctx, acct.Token), base: f.outlookBase, email: acct.Email}, nil
	case models.ProviderYahoo:
		return &imapMailbox{
			imapAddr: f.imapAddr,
			smtpAddr: f.smtpAddr,
			email:    acct.Email,
			password: acct.Password,
			token:    acct.Token,
			dialIMAP: f.dialIMAP,
			dialSMTP: f.dialSMTP,
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", acct.Provider, ErrUnsupportedProvider)
}

// VerifyIMAP checks that an address and app password can log in to Yahoo.
func (f *Factory) VerifyIMAP(ctx context.Context, email, password string) error {
	mb := &imapMailbox{imapAddr: f.imapAddr, email: email, password: password, dialIMAP: f.dialIMAP}
	return mb.verify(ctx)
}

func (f *Factory) oauthClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
}

var whitespace = regexp.MustCompile(`\s+`)

// Snippet collapses whitespace and truncates body for previews.
func Snippet(body string) string {
	s := strings.TrimSpace(whitespace.ReplaceAllString(body, " "))
	if r := []rune(s); len(r) > snippetLength {
		return string(r[:snippetLength])
	}
	return s
}

// ReplySubject prefixes subject with "Re: " unless it already has it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// Refresh renews tok through the named provider when it has expired.
func (f *Factory) Refresh(ctx context.Context, provider string, tok *oauth2.Token) (*oauth2.Token, bool, error) {
	p, err := f.Provider(provider)
	if err != nil {
		return nil, false, err
	}
	return p.Refresh(ctx, tok)
}

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/models"
)

// Yahoo endpoints. Both use implicit TLS.
const (
	YahooIMAPAddr = "imap.mail.yahoo.com:993"
	YahooSMTPAddr = "smtp.mail.yahoo.com:465"
)

const maxBodyBytes = 256 << 10

type imapDialer func(addr string) (*client.Client, error)

func dialIMAPTLS(addr string) (*client.Client, error) {
	return client.DialTLS(addr, nil)
}

type imapMailbox struct {
	imapAddr string
	smtpAddr string
	email    string
	password string
	token    *oauth2.Token
	dialIMAP imapDialer
	dialSMTP smtpDialer
}

// connect dials and authenticates, with an app password when one is stored
// and with OAUTHBEARER otherwise.
func (m *imapMailbox) connect(ctx context.Context) (*client.Client, error) {
	c, err := m.dialIMAP(m.imapAddr)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}

	if m.password != "" {
		err = c.Login(m.email, m.password)
	} else {
		err = c.Authenticate(m.bearer(m.imapAddr))
	}
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return c, nil
}

func (m *imapMailbox) bearer(addr string) sasl.Client {
	host, port := splitHostPort(addr)
	tok := ""
	if m.token != nil {
		tok = m.token.AccessToken
	}
	return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: m.email,
		Token:    tok,
		Host:     host,
		Port:     port,
	})
}

func (m *imapMailbox) verify(ctx context.Context) error {
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	return c.Logout()
}

func (m *imapMailbox) FetchSince(ctx context.Context, since time.Time, pageSize int) ([]models.InboundMessage, error) {
	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if pageSize < 1 {
		pageSize = FetchPageSize
	}

	var out []models.InboundMessage
	for start := 0; start < len(uids); start += pageSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := min(start+pageSize, len(uids))
		page, err := m.fetchUIDs(c, uids[start:end], since)
		out = append(out, page...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (m *imapMailbox) fetchUIDs(c *client.Client, uids []uint32, since time.Time) ([]models.InboundMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []models.InboundMessage
	for msg := range messages {
		// SINCE has day granularity.
		if msg.InternalDate.Before(since) {
			continue
		}
		out = append(out, parseIMAPMessage(msg, section))
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("imap fetch: %w", err)
	}
	return out, nil
}

func (m *imapMailbox) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.From == "" {
		msg.From = m.email
	}
	raw, err := Compose(msg, time.Now())
	if err != nil {
		return err
	}

	var auth sasl.Client
	if m.password != "" {
		auth = sasl.NewPlainClient("", m.email, m.password)
	} else {
		auth = m.bearer(m.smtpAddr)
	}
	return sendSMTP(ctx, m.dialSMTP, m.smtpAddr, auth, m.email, msg.To, raw)
}

func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) models.InboundMessage {
	out := models.InboundMessage{ReceivedAt: msg.InternalDate.UTC()}
	if env := msg.Envelope; env != nil {
		out.MessageID = env.MessageId
		out.Subject = env.Subject
		if len(env.From) > 0 {
			out.FromEmail = strings.ToLower(env.From[0].Address())
			out.FromName = env.From[0].PersonalName
		}
	}
	if out.MessageID == "" {
		out.MessageID = fmt.Sprintf("uid-%d", msg.Uid)
	}

	if body := msg.GetBody(section); body != nil {
		out.Body = readPlainText(body)
	}
	out.Snippet = Snippet(out.Body)
	return out
}

// readPlainText returns the first text/plain part of a message.
func readPlainText(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}
	defer mr.Close()

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return ""
		}
		if err != nil {
			return ""
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(p.Body, maxBodyBytes))
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := net.LookupPort("tcp", portStr)
	return host, port
}

package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/tidwall/gjson"

	"github.com/nikhil/creatortent/internal/models"
)

const gmailAPIBase = "https://gmail.googleapis.com"

type gmailMailbox struct {
	client *http.Client
	base   string
	email  string
}

func (g *gmailMailbox) FetchSince(ctx context.Context, since time.Time, pageSize int) ([]models.InboundMessage, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("in:inbox after:%d", since.Unix()))
	q.Set("maxResults", strconv.Itoa(pageSize))

	var out []models.InboundMessage
	for {
		list, err := getJSON(ctx, g.client, g.base+"/gmail/v1/users/me/messages?"+q.Encode(), nil)
		if err != nil {
			return out, fmt.Errorf("gmail list messages: %w", err)
		}

		for _, id := range gjson.GetBytes(list, "messages.#.id").Array() {
			raw, err := getJSON(ctx, g.client, g.base+"/gmail/v1/users/me/messages/"+url.PathEscape(id.String())+"?format=full", nil)
			if err != nil {
				return out, fmt.Errorf("gmail get message %s: %w", id.String(), err)
			}
			out = append(out, parseGmailMessage(raw))
		}

		next := gjson.GetBytes(list, "nextPageToken").String()
		if next == "" {
			return out, nil
		}
		q.Set("pageToken", next)
	}
}

func (g *gmailMailbox) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.From == "" {
		msg.From = g.email
	}
	raw, err := Compose(msg, time.Now())
	if err != nil {
		return err
	}

	payload := map[string]string{"raw": base64.URLEncoding.EncodeToString(raw)}
	if msg.ThreadID != "" {
		payload["threadId"] = msg.ThreadID
	}
	if _, err := postJSON(ctx, g.client, g.base+"/gmail/v1/users/me/messages/send", payload); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

func parseGmailMessage(raw []byte) models.InboundMessage {
	doc := gjson.ParseBytes(raw)

	headers := map[string]string{}
	doc.Get("payload.headers").ForEach(func(_, h gjson.Result) bool {
		headers[strings.ToLower(h.Get("name").String())] = h.Get("value").String()
		return true
	})

	msg := models.InboundMessage{
		MessageID:  headers["message-id"],
		ThreadID:   doc.Get("threadId").String(),
		Subject:    headers["subject"],
		ReceivedAt: time.UnixMilli(doc.Get("internalDate").Int()).UTC(),
		Body:       plainTextPart(doc.Get("payload")),
	}
	if msg.MessageID == "" {
		msg.MessageID = doc.Get("id").String()
	}
	msg.FromEmail, msg.FromName = parseFrom(headers["from"])

	if msg.Body != "" {
		msg.Snippet = Snippet(msg.Body)
	} else {
		msg.Snippet = html.UnescapeString(doc.Get("snippet").String())
		msg.Body = msg.Snippet
	}
	return msg
}

// plainTextPart walks a Gmail payload tree for the first text/plain body.
func plainTextPart(part gjson.Result) string {
	if strings.HasPrefix(part.Get("mimeType").String(), "text/plain") {
		if data := part.Get("body.data").String(); data != "" {
			return decodeBase64URL(data)
		}
	}
	for _, child := range part.Get("parts").Array() {
		if s := plainTextPart(child); s != "" {
			return s
		}
	}
	return ""
}

func decodeBase64URL(s string) string {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return ""
	}
	return string(b)
}

// parseFrom splits a From header into address and display name.
func parseFrom(header string) (string, string) {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.ToLower(strings.Trim(strings.TrimSpace(header), "<>")), ""
	}
	return strings.ToLower(addr.Address), addr.Name
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

package mailbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nikhil/creatortent/internal/models"
)

const graphAPIBase = "https://graph.microsoft.com"

type outlookMailbox struct {
	client *http.Client
	base   string
	email  string
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphSendMail struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []graphRecipient `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

func (o *outlookMailbox) FetchSince(ctx context.Context, since time.Time, pageSize int) ([]models.InboundMessage, error) {
	q := url.Values{}
	q.Set("$filter", "receivedDateTime ge "+since.UTC().Format(time.RFC3339))
	q.Set("$orderby", "receivedDateTime asc")
	q.Set("$top", strconv.Itoa(pageSize))
	q.Set("$select", "id,internetMessageId,conversationId,subject,from,body,bodyPreview,receivedDateTime")

	header := http.Header{}
	header.Set("Prefer", `outlook.body-content-type="text"`)

	var out []models.InboundMessage
	// Graph hands back the absolute URL of the next page.
	next := o.base + "/v1.0/me/mailFolders/inbox/messages?" + q.Encode()
	for next != "" {
		body, err := getJSON(ctx, o.client, next, header)
		if err != nil {
			return out, fmt.Errorf("outlook list messages: %w", err)
		}
		for _, m := range gjson.GetBytes(body, "value").Array() {
			out = append(out, parseGraphMessage(m))
		}
		next = nextLink(body)
	}
	return out, nil
}

func (o *outlookMailbox) Send(ctx context.Context, msg models.OutboundMessage) error {
	var payload graphSendMail
	payload.Message.Subject = msg.Subject
	payload.Message.Body.ContentType = "Text"
	payload.Message.Body.Content = msg.Body
	var to graphRecipient
	to.EmailAddress.Address = msg.To
	payload.Message.ToRecipients = []graphRecipient{to}
	payload.SaveToSentItems = true

	if _, err := postJSON(ctx, o.client, o.base+"/v1.0/me/sendMail", payload); err != nil {
		return fmt.Errorf("outlook send: %w", err)
	}
	return nil
}

// nextLink reads "@odata.nextLink", which a gjson path would take for a modifier.
func nextLink(body []byte) string {
	var link string
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "@odata.nextLink" {
			link = value.String()
			return false
		}
		return true
	})
	return link
}

func parseGraphMessage(m gjson.Result) models.InboundMessage {
	received, _ := time.Parse(time.RFC3339, m.Get("receivedDateTime").String())
	msg := models.InboundMessage{
		MessageID:  m.Get("internetMessageId").String(),
		ThreadID:   m.Get("conversationId").String(),
		FromEmail:  strings.ToLower(m.Get("from.emailAddress.address").String()),
		FromName:   m.Get("from.emailAddress.name").String(),
		Subject:    m.Get("subject").String(),
		Body:       m.Get("body.content").String(),
		Snippet:    m.Get("bodyPreview").String(),
		ReceivedAt: received.UTC(),
	}
	if msg.MessageID == "" {
		msg.MessageID = m.Get("id").String()
	}
	if msg.Snippet == "" {
		msg.Snippet = Snippet(msg.Body)
	}
	return msg
}

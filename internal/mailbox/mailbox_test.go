package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/models"
)

func testFactory(srv *httptest.Server) *Factory {
	f := NewFactory(nil)
	f.httpClient = srv.Client()
	f.gmailBase = srv.URL
	f.outlookBase = srv.URL
	return f
}

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func TestGmailFetchSince(t *testing.T) {
	body := base64.URLEncoding.EncodeToString([]byte("Hi! We'd love to sponsor your next video."))
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "in:inbox after:1700000000", r.URL.Query().Get("q"))
		w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id":"m1","threadId":"t1","internalDate":"1700000500000","snippet":"Hi! We&#39;d love",
			"payload":{"mimeType":"multipart/alternative","headers":[
				{"name":"From","value":"Brand Team <Deals@Brand.com>"},
				{"name":"Subject","value":"Sponsorship"},
				{"name":"Message-Id","value":"<abc@brand.com>"}],
			"parts":[
				{"mimeType":"text/html","body":{"data":"PGI-aGk8L2I-"}},
				{"mimeType":"text/plain","body":{"data":"` + body + `"}}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderGmail, Email: "me@gmail.com", Token: validToken()})
	require.NoError(t, err)

	msgs, err := mb.FetchSince(context.Background(), time.Unix(1700000000, 0), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := msgs[0]
	assert.Equal(t, "<abc@brand.com>", got.MessageID)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "deals@brand.com", got.FromEmail)
	assert.Equal(t, "Brand Team", got.FromName)
	assert.Equal(t, "Sponsorship", got.Subject)
	assert.Equal(t, "Hi! We'd love to sponsor your next video.", got.Body)
	assert.Equal(t, int64(1700000500), got.ReceivedAt.Unix())
}

func TestGmailFetchSinceFollowsPageTokens(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		switch r.URL.Query().Get("pageToken") {
		case "":
			w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`))
		case "p2":
			w.Write([]byte(`{"messages":[{"id":"m3"}]}`))
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		w.Write([]byte(`{"id":"` + id + `","internalDate":"1700000500000","payload":{"headers":[
			{"name":"From","value":"deals@brand.com"},
			{"name":"Message-Id","value":"<` + id + `@brand.com>"}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderGmail, Token: validToken()})
	require.NoError(t, err)

	msgs, err := mb.FetchSince(context.Background(), time.Unix(1700000000, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, listCalls)
	require.Len(t, msgs, 3)
	assert.Equal(t, "<m3@brand.com>", msgs[2].MessageID)
}

func TestGmailSendEncodesRawMessage(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"id":"sent"}`))
	}))
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderGmail, Email: "me@gmail.com", Token: validToken()})
	require.NoError(t, err)

	err = mb.Send(context.Background(), models.OutboundMessage{To: "deals@brand.com", Subject: "Re: Sponsorship", Body: "Thanks!", ThreadID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, "t1", payload["threadId"])
	raw, err := base64.URLEncoding.DecodeString(payload["raw"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "From: <me@gmail.com>")
	assert.Contains(t, string(raw), "Thanks!")
}

func TestGmailUnauthorizedIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderGmail, Token: validToken()})
	require.NoError(t, err)

	_, err = mb.FetchSince(context.Background(), time.Now(), 10)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestOutlookFetchAndSend(t *testing.T) {
	var sent graphSendMail
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `outlook.body-content-type="text"`, r.Header.Get("Prefer"))
		assert.Equal(t, "receivedDateTime ge 2024-01-02T03:04:05Z", r.URL.Query().Get("$filter"))
		w.Write([]byte(`{"value":[{
			"id":"AAMk","internetMessageId":"<x@events.io>","conversationId":"conv",
			"subject":"Panel invite","bodyPreview":"Join our panel",
			"body":{"contentType":"text","content":"Join our panel in May."},
			"from":{"emailAddress":{"name":"Events","address":"Hello@Events.io"}},
			"receivedDateTime":"2024-01-02T05:00:00Z"}]}`))
	})
	mux.HandleFunc("/v1.0/me/sendMail", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderOutlook, Token: validToken()})
	require.NoError(t, err)

	msgs, err := mb.FetchSince(context.Background(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "<x@events.io>", msgs[0].MessageID)
	assert.Equal(t, "hello@events.io", msgs[0].FromEmail)
	assert.Equal(t, "Join our panel in May.", msgs[0].Body)

	require.NoError(t, mb.Send(context.Background(), models.OutboundMessage{To: "hello@events.io", Subject: "Re: Panel invite", Body: "Sure"}))
	assert.Equal(t, "Re: Panel invite", sent.Message.Subject)
	require.Len(t, sent.Message.ToRecipients, 1)
	assert.Equal(t, "hello@events.io", sent.Message.ToRecipients[0].EmailAddress.Address)
}

func TestOutlookFetchSinceFollowsNextLink(t *testing.T) {
	page := func(id string) string {
		return `{"internetMessageId":"<` + id + `@events.io>","from":{"emailAddress":{"address":"hello@events.io"}},"receivedDateTime":"2024-01-02T05:00:00Z"}`
	}
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("$skiptoken") == "" {
			assert.Equal(t, "1", r.URL.Query().Get("$top"))
			next := "http://" + r.Host + "/v1.0/me/mailFolders/inbox/messages?%24skiptoken=abc"
			w.Write([]byte(`{"@odata.nextLink":"` + next + `","value":[` + page("a") + `]}`))
			return
		}
		w.Write([]byte(`{"value":[` + page("b") + `]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mb, err := testFactory(srv).Open(context.Background(), Account{Provider: models.ProviderOutlook, Token: validToken()})
	require.NoError(t, err)

	msgs, err := mb.FetchSince(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, msgs, 2)
	assert.Equal(t, "<a@events.io>", msgs[0].MessageID)
	assert.Equal(t, "<b@events.io>", msgs[1].MessageID)
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := NewFactory(nil).Open(context.Background(), Account{Provider: "aol"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestComposeReply(t *testing.T) {
	raw, err := Compose(models.OutboundMessage{
		From:      "Creator <me@yahoo.com>",
		To:        "deals@brand.com",
		Subject:   "Re: Sponsorship",
		Body:      "Rates attached.\r\nThanks",
		InReplyTo: "<abc@brand.com>",
	}, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Sponsorship", subject)
	assert.Equal(t, "<abc@brand.com>", mr.Header.Get("In-Reply-To"))
	assert.NotEmpty(t, mr.Header.Get("Message-Id"))

	p, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Rates attached.")
	assert.Contains(t, string(body), "Thanks")
}

func TestComposeRejectsBadAddress(t *testing.T) {
	_, err := Compose(models.OutboundMessage{From: "me@yahoo.com", To: "not an address"}, time.Now())
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("  a\n\n b\t c "))
	assert.Len(t, []rune(Snippet(strings.Repeat("é", 500))), snippetLength)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", ReplySubject("Hello"))
	assert.Equal(t, "RE: Hello", ReplySubject("RE: Hello"))
}

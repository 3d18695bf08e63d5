// Package ai classifies inbound email with an LLM and drafts auto-replies.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/nikhil/creatortent/internal/models"
)

// Caps on model-supplied fields; brand and budget match their column widths.
const (
	maxPromptBody = 4000
	maxSummary    = 500
	maxBrandName  = 255
	maxBudget     = 100
)

// ErrUnavailable is returned when no model is configured.
var ErrUnavailable = errors.New("ai analysis unavailable")

// Analysis is the classifier's verdict on one message.
type Analysis struct {
	IsBusinessInquiry bool    `json:"is_business_inquiry"`
	Confidence        float64 `json:"confidence"`
	InquiryType       string  `json:"inquiry_type"`
	BrandName         string  `json:"brand_name"`
	Budget            string  `json:"budget"`
	Summary           string  `json:"summary"`
}

// DefaultAnalysis is used whenever classification fails.
func DefaultAnalysis() Analysis {
	return Analysis{
		IsBusinessInquiry: false,
		Confidence:        0,
		InquiryType:       models.InquiryOther,
		Summary:           "Analysis unavailable",
	}
}

// Assistant wraps a Generator with prompts and a request budget.
type Assistant struct {
	gen     Generator
	prompts *Prompts
	limiter *rate.Limiter
}

// NewAssistant returns an Assistant allowing perMinute model calls per
// minute. A nil gen makes every call fail with ErrUnavailable.
func NewAssistant(gen Generator, prompts *Prompts, perMinute int) *Assistant {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Assistant{gen: gen, prompts: prompts, limiter: rate.NewLimiter(limit, 1)}
}

// Classify analyses msg. On any failure it returns DefaultAnalysis together
// with the error so callers can record it.
func (a *Assistant) Classify(ctx context.Context, msg models.InboundMessage) (Analysis, error) {
	if a.gen == nil {
		return DefaultAnalysis(), ErrUnavailable
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return DefaultAnalysis(), fmt.Errorf("wait for ai budget: %w", err)
	}

	body := msg.Body
	if r := []rune(body); len(r) > maxPromptBody {
		body = string(r[:maxPromptBody])
	}
	msg.Body = body
	prompt, err := render(a.prompts.classifyUser, msg)
	if err != nil {
		return DefaultAnalysis(), err
	}

	out, err := a.gen.Generate(ctx, a.prompts.classifySystem, prompt, true)
	if err != nil {
		return DefaultAnalysis(), err
	}
	analysis, err := ParseAnalysis(out)
	if err != nil {
		return DefaultAnalysis(), err
	}
	return analysis, nil
}

// PolishReply asks the model to rewrite draft. On failure the draft is
// returned unchanged along with the error.
func (a *Assistant) PolishReply(ctx context.Context, draft, summary string) (string, error) {
	if a.gen == nil || a.prompts.rewriteUser == nil || a.prompts.rewriteSystem == "" {
		return draft, ErrUnavailable
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return draft, fmt.Errorf("wait for ai budget: %w", err)
	}

	prompt, err := render(a.prompts.rewriteUser, struct{ Draft, Summary string }{draft, summary})
	if err != nil {
		return draft, err
	}
	out, err := a.gen.Generate(ctx, a.prompts.rewriteSystem, prompt, false)
	if err != nil {
		return draft, err
	}
	out = strings.TrimSpace(stripFences(out))
	if out == "" {
		return draft, fmt.Errorf("empty rewrite")
	}
	return out + "\n", nil
}

// ParseAnalysis reads model output into an Analysis. It tolerates code
// fences and prose around the JSON object.
func ParseAnalysis(out string) (Analysis, error) {
	raw := stripFences(out)
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Analysis{}, fmt.Errorf("no JSON object in model output")
	}
	raw = raw[start : end+1]
	if !gjson.Valid(raw) {
		return Analysis{}, fmt.Errorf("invalid JSON in model output")
	}

	doc := gjson.Parse(raw)
	if !doc.Get("is_business_inquiry").Exists() {
		return Analysis{}, fmt.Errorf("model output lacks is_business_inquiry")
	}

	a := Analysis{
		IsBusinessInquiry: doc.Get("is_business_inquiry").Bool(),
		Confidence:        clamp(doc.Get("confidence").Float()),
		InquiryType:       normalizeType(doc.Get("inquiry_type").String()),
		BrandName:         truncate(doc.Get("brand_name").String(), maxBrandName),
		Budget:            truncate(doc.Get("budget").String(), maxBudget),
		Summary:           truncate(doc.Get("summary").String(), maxSummary),
	}
	return a, nil
}

// truncate trims s and cuts it to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return strings.TrimSpace(string(r[:n]))
	}
	return s
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func normalizeType(t string) string {
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case models.InquirySponsorship, models.InquiryCollaboration, models.InquiryAffiliate, models.InquiryEvent:
		return t
	}
	return models.InquiryOther
}

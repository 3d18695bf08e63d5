package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/nikhil/creatortent/internal/currency"
	"github.com/nikhil/creatortent/internal/models"
)

//go:embed prompts.yaml
var promptsYAML []byte

type promptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type promptFile struct {
	Classify promptPair `yaml:"classify"`
	Rewrite  promptPair `yaml:"rewrite"`
	Reply    string     `yaml:"reply"`
}

// Prompts holds the parsed prompt and reply templates.
type Prompts struct {
	classifySystem string
	classifyUser   *template.Template
	rewriteSystem  string
	rewriteUser    *template.Template
	reply          *template.Template
}

// RateLine is one rate as it appears in a reply.
type RateLine struct {
	ServiceType string
	Description string
	Amount      string
}

// ReplyData fills the auto-reply template.
type ReplyData struct {
	SenderName string
	BrandName  string
	Rates      []RateLine
	Signature  string
}

// LoadPrompts parses the embedded prompts.
func LoadPrompts() (*Prompts, error) {
	return ParsePrompts(promptsYAML)
}

// ParsePrompts parses a prompts document.
func ParsePrompts(data []byte) (*Prompts, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if f.Classify.System == "" || f.Classify.User == "" || f.Reply == "" {
		return nil, fmt.Errorf("prompts: classify and reply templates are required")
	}

	p := &Prompts{classifySystem: f.Classify.System, rewriteSystem: f.Rewrite.System}
	var err error
	if p.classifyUser, err = template.New("classify").Parse(f.Classify.User); err != nil {
		return nil, fmt.Errorf("parse classify prompt: %w", err)
	}
	if p.rewriteUser, err = template.New("rewrite").Parse(f.Rewrite.User); err != nil {
		return nil, fmt.Errorf("parse rewrite prompt: %w", err)
	}
	if p.reply, err = template.New("reply").Parse(f.Reply); err != nil {
		return nil, fmt.Errorf("parse reply template: %w", err)
	}
	return p, nil
}

// NewReplyData builds template data for replying to inq as user.
func NewReplyData(inq models.EmailInquiry, user models.User, rates []models.UserRate) ReplyData {
	data := ReplyData{
		SenderName: firstName(inq.FromName),
		BrandName:  inq.BrandName,
		Signature:  user.ReplySignature,
	}
	if data.SenderName == "" {
		data.SenderName = "there"
	}
	if data.Signature == "" {
		data.Signature = "Best,\n" + user.FullName()
	}
	for _, r := range rates {
		data.Rates = append(data.Rates, RateLine{
			ServiceType: r.ServiceType,
			Description: r.Description,
			Amount:      currency.Format(r.Amount, r.Currency),
		})
	}
	return data
}

// RenderReply fills the auto-reply template.
func (p *Prompts) RenderReply(data ReplyData) (string, error) {
	var buf bytes.Buffer
	if err := p.reply.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render reply: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func firstName(name string) string {
	fields := strings.Fields(strings.Trim(name, `"'`))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"

	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

// ResendProvider delivers through the Resend HTTP API.
type ResendProvider struct{ httpSender }

func NewResendProvider(o HTTPOptions) *ResendProvider {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.resend.com"
	}
	return &ResendProvider{newHTTPSender(o)}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (p *ResendProvider) SendEmail(ctx context.Context, msg model.EmailMessage) (string, error) {
	headers := map[string]string{}
	if msg.DedupKey != "" {
		headers["Idempotency-Key"] = msg.DedupKey
	}

	_, body, err := p.post(ctx, "/emails", resendRequest{
		From:    p.from,
		To:      []string{msg.Recipient},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}, headers)
	if err != nil {
		return "", p.record(err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", p.record(&model.ProviderError{Provider: p.name, Err: fmt.Errorf("unexpected response: %s", truncate(string(body), 128))})
	}

	return out.ID, p.record(nil)
}

// SendGridProvider delivers through the SendGrid v3 mail/send API.
type SendGridProvider struct{ httpSender }

func NewSendGridProvider(o HTTPOptions) *SendGridProvider {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.sendgrid.com"
	}
	return &SendGridProvider{newHTTPSender(o)}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	CustomArgs       map[string]string   `json:"custom_args,omitempty"`
}

func (p *SendGridProvider) SendEmail(ctx context.Context, msg model.EmailMessage) (string, error) {
	req := sendGridRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.Recipient}}}},
		From:             parseAddress(p.from),
		Subject:          msg.Subject,
	}

	// text/plain must precede text/html
	if msg.Text != "" {
		req.Content = append(req.Content, sgContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		req.Content = append(req.Content, sgContent{Type: "text/html", Value: msg.HTML})
	}
	if msg.DedupKey != "" {
		req.CustomArgs = map[string]string{"dedup_key": msg.DedupKey}
	}

	hdr, _, err := p.post(ctx, "/v3/mail/send", req, nil)
	if err != nil {
		return "", p.record(err)
	}

	return hdr.Get("X-Message-Id"), p.record(nil)
}

func parseAddress(s string) sgAddress {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return sgAddress{Email: s}
	}
	return sgAddress{Email: a.Address, Name: a.Name}
}

// LogProvider writes messages to the logger instead of sending them. Intended for development.
type LogProvider struct {
	name string
	log  *zap.Logger
}

func NewLogProvider(name string, log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	if name == "" {
		name = "log"
	}
	return &LogProvider{name: name, log: log}
}

func (p *LogProvider) Name() string     { return p.name }
func (p *LogProvider) Configured() bool { return true }
func (p *LogProvider) Ready() bool      { return true }
func (p *LogProvider) Acquire() bool    { return true }

func (p *LogProvider) SendEmail(_ context.Context, msg model.EmailMessage) (string, error) {
	id := util.NewID()
	p.log.Info("email delivered to log sink",
		zap.String("provider", p.name),
		zap.String("id", id),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
	)
	return id, nil
}

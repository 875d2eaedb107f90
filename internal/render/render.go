package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Each template file defines three blocks: "subject", "text" and "html".
const (
	blockSubject = "subject"
	blockText    = "text"
	blockHTML    = "html"
)

// audiences decides who receives the email of each kind.
var audiences = map[model.EventKind]model.Audience{
	model.KindAccountCreated:   model.AudienceInternal,
	model.KindIntakeCompleted:  model.AudienceInternal,
	model.KindDemoApproved:     model.AudienceCustomer,
	model.KindPaymentCompleted: model.AudienceCustomer,
	model.KindGenericContact:   model.AudienceInternal,
}

type set struct {
	audience model.Audience
	text     *texttemplate.Template
	html     *htmltemplate.Template
}

// Renderer turns lifecycle events into email messages. Safe for concurrent use.
type Renderer struct {
	sets map[model.EventKind]set
}

// New compiles the embedded template set for every known kind.
func New() (*Renderer, error) {
	r := &Renderer{sets: make(map[model.EventKind]set, len(audiences))}

	for kind, aud := range audiences {
		src, err := templatesFS.ReadFile("templates/" + string(kind) + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", kind, err)
		}
		if err := r.Register(kind, aud, string(src)); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// MustNew is New for wiring code where the embedded templates cannot be missing.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Register compiles src and replaces the template set of kind.
// Not safe to call concurrently with Render.
func (r *Renderer) Register(kind model.EventKind, aud model.Audience, src string) error {
	txt, err := texttemplate.New(string(kind)).Option("missingkey=zero").Parse(src)
	if err != nil {
		return fmt.Errorf("parse text template %s: %w", kind, err)
	}

	html, err := htmltemplate.New(string(kind)).Option("missingkey=zero").Parse(src)
	if err != nil {
		return fmt.Errorf("parse html template %s: %w", kind, err)
	}

	for _, name := range []string{blockSubject, blockText} {
		if txt.Lookup(name) == nil {
			return fmt.Errorf("template %s: block %q missing", kind, name)
		}
	}
	if html.Lookup(blockHTML) == nil {
		return fmt.Errorf("template %s: block %q missing", kind, blockHTML)
	}

	r.sets[kind] = set{audience: aud, text: txt, html: html}
	return nil
}

// Render produces the email for ev. ok is false when the kind has no template.
func (r *Renderer) Render(ev model.LifecycleEvent) (model.EmailMessage, model.Audience, bool, error) {
	s, ok := r.sets[ev.Kind]
	if !ok {
		return model.EmailMessage{}, "", false, nil
	}

	v := view{LifecycleEvent: ev}

	subject, err := execText(s.text, blockSubject, v)
	if err != nil {
		return model.EmailMessage{}, s.audience, true, err
	}

	text, err := execText(s.text, blockText, v)
	if err != nil {
		return model.EmailMessage{}, s.audience, true, err
	}

	var html bytes.Buffer
	if err := s.html.ExecuteTemplate(&html, blockHTML, v); err != nil {
		return model.EmailMessage{}, s.audience, true, fmt.Errorf("render %s html: %w", ev.Kind, err)
	}

	msg := model.EmailMessage{
		Subject:  strings.Join(strings.Fields(subject), " "),
		HTML:     strings.TrimSpace(html.String()),
		Text:     strings.TrimSpace(text),
		DedupKey: dedupKey(ev),
	}

	if s.audience == model.AudienceCustomer {
		if email, err := util.NormalizeEmail(ev.Subject.Email); err == nil {
			msg.Recipient = email
		}
	}

	return msg, s.audience, true, nil
}

// dedupKey scopes the business key to the subject: some payload keys (a demo
// option id, for one) are shared by every customer.
func dedupKey(ev model.LifecycleEvent) string {
	who, _ := util.NormalizeEmail(ev.Subject.Email)
	return string(ev.Kind) + ":" + util.Hash(who) + ":" + ev.DedupKey()
}

func execText(t *texttemplate.Template, name string, v view) (string, error) {
	var b bytes.Buffer
	if err := t.ExecuteTemplate(&b, name, v); err != nil {
		return "", fmt.Errorf("render %s %s: %w", t.Name(), name, err)
	}
	return b.String(), nil
}

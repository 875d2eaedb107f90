package conversion

import (
	"strings"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

type BuilderOptions struct {
	Mapping        Mapping
	DefaultCountry string // phone hint when the subject has none
	ActionSource   string
	EventSourceURL string
	TestEventCode  string // applied when the event carries none
}

type Builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) *Builder {
	if opts.ActionSource == "" {
		opts.ActionSource = "website"
	}
	return &Builder{opts: opts}
}

// Build derives the conversion event. ok is false when the kind is unmapped.
func (b *Builder) Build(ev model.LifecycleEvent) (model.ConversionEvent, bool, error) {
	name, ok := b.opts.Mapping.StandardEvent(ev)
	if !ok {
		return model.ConversionEvent{}, false, nil
	}

	email, err := util.NormalizeEmail(ev.Subject.Email)
	if err != nil {
		return model.ConversionEvent{}, true, err
	}

	out := model.ConversionEvent{
		EventName:      name,
		EventTime:      ev.OccurredAt,
		EventID:        EventID(email, ev.Kind, ev.DedupKey()),
		ActionSource:   b.opts.ActionSource,
		EventSourceURL: b.opts.EventSourceURL,
		UserData:       b.userData(email, ev.Subject),
		CustomData:     customData(ev),
		TestEventCode:  ev.TestEventCode,
	}
	if out.TestEventCode == "" {
		out.TestEventCode = b.opts.TestEventCode
	}
	return out, true, nil
}

func (b *Builder) userData(email string, s model.Subject) model.HashedUserData {
	ud := model.HashedUserData{Email: []string{util.Hash(email)}}

	if s.Phone != "" {
		hint := s.Country
		if hint == "" {
			hint = b.opts.DefaultCountry
		}
		// an unusable phone only weakens matching; it never blocks the report
		if ph, err := util.NormalizePhone(s.Phone, hint); err == nil {
			ud.Phone = []string{util.Hash(ph)}
		}
	}

	first, last := util.SplitName(s.Name)
	if fn := util.NormalizeName(first); fn != "" {
		ud.FirstName = []string{util.Hash(fn)}
	}
	if ln := util.NormalizeName(last); ln != "" {
		ud.LastName = []string{util.Hash(ln)}
	}
	if id := strings.TrimSpace(s.ExternalID); id != "" {
		ud.ExternalID = []string{util.Hash(id)}
	}
	return ud
}

func customData(ev model.LifecycleEvent) map[string]any {
	cd := map[string]any{}
	switch ev.Kind {
	case model.KindPaymentCompleted:
		if v, ok := ev.PayloadInt64(model.FieldAmount); ok {
			cd["value"] = v
		}
		if c, ok := ev.PayloadString(model.FieldCurrency); ok {
			cd["currency"] = c
		}
		if id, ok := ev.PayloadString(model.FieldPaymentID); ok {
			cd["order_id"] = id
		}
	case model.KindIntakeCompleted:
		if n, ok := ev.PayloadString(model.FieldBusinessName); ok {
			cd["content_name"] = n
		}
		cd["content_category"] = "intake"
	case model.KindGenericContact:
		cd["content_category"] = "contact"
	}
	if len(cd) == 0 {
		return nil
	}
	return cd
}

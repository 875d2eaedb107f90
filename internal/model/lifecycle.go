package model

import (
	"maps"
	"strings"
	"time"
)

type EventKind string

const (
	KindAccountCreated   EventKind = "account_created"
	KindIntakeCompleted  EventKind = "intake_completed"
	KindDemoApproved     EventKind = "demo_approved"
	KindPaymentCompleted EventKind = "payment_completed"
	KindGenericContact   EventKind = "generic_contact"
)

func (k EventKind) String() string { return string(k) }

func (k EventKind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// ParseEventKind normalizes input; accepts snake_case and CamelCase names.
// Returns (value, true) if valid; otherwise ("", false).
func ParseEventKind(s string) (EventKind, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "accountcreated":
		return KindAccountCreated, true
	case "intakecompleted":
		return KindIntakeCompleted, true
	case "demoapproved":
		return KindDemoApproved, true
	case "paymentcompleted":
		return KindPaymentCompleted, true
	case "genericcontact":
		return KindGenericContact, true
	default:
		return "", false
	}
}

// Subject is the customer identity a lifecycle event is about.
type Subject struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	Country      string `json:"country,omitempty"`     // ISO-3166 alpha-2, phone normalization hint
	ExternalID   string `json:"external_id,omitempty"` // identity-provider user id
}

// LifecycleEvent is a discrete business occurrence handed to the router.
// Build it with NewLifecycleEvent; the payload map is owned by the event afterwards.
type LifecycleEvent struct {
	Kind          EventKind      `json:"kind"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Subject       Subject        `json:"subject"`
	Payload       map[string]any `json:"payload,omitempty"`
	TestEventCode string         `json:"test_event_code,omitempty"`
}

func NewLifecycleEvent(kind EventKind, occurredAt time.Time, subject Subject, payload map[string]any) LifecycleEvent {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return LifecycleEvent{
		Kind:       kind,
		OccurredAt: occurredAt.UTC(),
		Subject:    subject,
		Payload:    maps.Clone(payload),
	}
}

// WithTestEventCode returns a copy routed to the ad platform's test pipeline.
func (e LifecycleEvent) WithTestEventCode(code string) LifecycleEvent {
	e.Payload = maps.Clone(e.Payload)
	e.TestEventCode = code
	return e
}

// Validate checks the kind-specific required field set.
func (e LifecycleEvent) Validate() error {
	sc, ok := schemas[e.Kind]
	if !ok {
		return &ValidationError{Field: "kind", Reason: "unknown event kind " + string(e.Kind)}
	}
	if strings.TrimSpace(e.Subject.Email) == "" {
		return &ValidationError{Field: "subject.email", Reason: "required"}
	}
	for _, f := range sc.Required {
		if _, ok := e.PayloadString(f); !ok {
			return &ValidationError{Field: "payload." + f, Reason: "required"}
		}
	}
	if sc.Validate != nil {
		return sc.Validate(e)
	}
	return nil
}

// DedupKey is the stable per-business-record key used for event ids and email dedup.
func (e LifecycleEvent) DedupKey() string {
	if sc, ok := schemas[e.Kind]; ok && sc.DedupField != "" {
		if v, ok := e.PayloadString(sc.DedupField); ok {
			return v
		}
	}
	return strconv64(e.OccurredAt.UnixNano())
}

// RequireStableKey fails when ev carries neither its dedup field nor a time
// given by the caller. A retry of such an event would get a fresh key.
func (e LifecycleEvent) RequireStableKey(occurredAtGiven bool) error {
	sc, ok := schemas[e.Kind]
	if !ok || sc.DedupField == "" || occurredAtGiven {
		return nil
	}
	if _, ok := e.PayloadString(sc.DedupField); ok {
		return nil
	}
	return &ValidationError{Field: "occurred_at", Reason: "required when payload." + sc.DedupField + " is absent"}
}

// PayloadString returns a non-empty, trimmed string representation of payload[key].
func (e LifecycleEvent) PayloadString(key string) (string, bool) {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(stringify(v))
	return s, s != ""
}

// PayloadInt64 reads an integral numeric payload field.
func (e LifecycleEvent) PayloadInt64(key string) (int64, bool) {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return 0, false
	}
	return toInt64(v)
}

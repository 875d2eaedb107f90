package model

import "time"

// Standard (ad platform defined) event names.
const (
	StandardCompleteRegistration = "CompleteRegistration"
	StandardViewContent          = "ViewContent"
	StandardContact              = "Contact"
	StandardInitiateCheckout     = "InitiateCheckout"
	StandardPurchase             = "Purchase"
)

// HashedUserData carries sha256 hex digests of normalized PII, keyed the way the
// platform's matching expects (em, ph, fn, ln, external_id).
type HashedUserData struct {
	Email      []string `json:"em,omitempty"`
	Phone      []string `json:"ph,omitempty"`
	FirstName  []string `json:"fn,omitempty"`
	LastName   []string `json:"ln,omitempty"`
	ExternalID []string `json:"external_id,omitempty"`
}

// ConversionEvent is the standardized report derived from one lifecycle event.
// EventID is computed once per business event and reused across retries.
type ConversionEvent struct {
	EventName      string
	EventTime      time.Time
	EventID        string
	ActionSource   string
	EventSourceURL string
	UserData       HashedUserData
	CustomData     map[string]any
	TestEventCode  string // non-empty routes the event to the platform's test pipeline
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload keys shared by the router, templates and the conversion builder.
const (
	FieldUserID           = "userId"
	FieldBusinessName     = "businessName"
	FieldSubmissionID     = "submissionId"
	FieldFlavor           = "flavor"
	FieldApprovedOptionID = "approvedOptionId"
	FieldDemoURL          = "demoUrl"
	FieldAmount           = "amount"
	FieldCurrency         = "currency"
	FieldPaymentID        = "paymentId"
	FieldCustomerID       = "customerId"
	FieldMessage          = "message"
	FieldMessageID        = "messageId"
)

// FlavorContact switches an intake conversion from ViewContent to Contact.
const FlavorContact = "contact"

// Schema is the required payload contract of one event kind.
type Schema struct {
	Required   []string
	DedupField string
	Validate   func(LifecycleEvent) error
}

var schemas = map[EventKind]Schema{
	KindAccountCreated: {
		DedupField: FieldUserID,
	},
	KindIntakeCompleted: {
		Required:   []string{FieldBusinessName},
		DedupField: FieldSubmissionID,
	},
	KindDemoApproved: {
		Required:   []string{FieldApprovedOptionID, FieldDemoURL},
		DedupField: FieldApprovedOptionID,
	},
	KindPaymentCompleted: {
		Required:   []string{FieldAmount, FieldCurrency, FieldPaymentID},
		DedupField: FieldPaymentID,
		Validate:   validatePayment,
	},
	KindGenericContact: {
		Required:   []string{FieldMessage},
		DedupField: FieldMessageID,
	},
}

// SchemaOf returns the payload contract for kind.
func SchemaOf(kind EventKind) (Schema, bool) {
	sc, ok := schemas[kind]
	return sc, ok
}

func validatePayment(e LifecycleEvent) error {
	amount, ok := e.PayloadInt64(FieldAmount)
	if !ok {
		return &ValidationError{Field: "payload." + FieldAmount, Reason: "must be an integer amount in minor units"}
	}
	if amount < 0 {
		return &ValidationError{Field: "payload." + FieldAmount, Reason: "must not be negative"}
	}
	cur, _ := e.PayloadString(FieldCurrency)
	if len(cur) != 3 {
		return &ValidationError{Field: "payload." + FieldCurrency, Reason: "must be a 3-letter ISO code"}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv64(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func strconv64(n int64) string { return strconv.FormatInt(n, 10) }

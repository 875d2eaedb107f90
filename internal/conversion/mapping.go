package conversion

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Thetimii/dashboard-sub001/internal/model"
)

// Mapping is the fixed kind -> standard event table. Only the purchase-equivalent
// name is configurable.
type Mapping struct {
	PurchaseEventName string
}

// StandardEvent returns the standard event name for ev; ok is false for kinds
// that are not reported.
func (m Mapping) StandardEvent(ev model.LifecycleEvent) (string, bool) {
	switch ev.Kind {
	case model.KindAccountCreated:
		return model.StandardCompleteRegistration, true
	case model.KindIntakeCompleted:
		if flavor, _ := ev.PayloadString(model.FieldFlavor); strings.EqualFold(flavor, model.FlavorContact) {
			return model.StandardContact, true
		}
		return model.StandardViewContent, true
	case model.KindPaymentCompleted:
		if m.PurchaseEventName != "" {
			return m.PurchaseEventName, true
		}
		return model.StandardPurchase, true
	case model.KindGenericContact:
		return model.StandardContact, true
	default:
		return "", false
	}
}

var eventNamespace = uuid.MustParse("8a3c5e0d-2f6b-4c1a-9d7e-5b4f3a2c1e0f")

// EventID derives the platform dedup id from subject, kind and the business
// record's stable key. Same inputs always give the same id.
func EventID(subjectEmail string, kind model.EventKind, dedupKey string) string {
	email := strings.ToLower(strings.TrimSpace(subjectEmail))
	return uuid.NewSHA1(eventNamespace, []byte(email+"|"+string(kind)+"|"+dedupKey)).String()
}

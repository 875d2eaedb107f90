package render

import (
	"fmt"
	"strings"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

// view is the data handed to templates.
type view struct {
	model.LifecycleEvent
}

// Field returns a payload value as text, or "" when absent.
func (v view) Field(key string) string {
	s, _ := v.PayloadString(key)
	return s
}

func (v view) FirstName() string {
	first, _ := util.SplitName(v.Subject.Name)
	if first == "" {
		return "there"
	}
	return first
}

func (v view) When() string {
	return v.OccurredAt.Format("2006-01-02 15:04 MST")
}

// Amount formats the payment amount (minor units) with its currency.
func (v view) Amount() string {
	cur := strings.ToUpper(v.Field(model.FieldCurrency))
	n, ok := v.PayloadInt64(model.FieldAmount)
	if !ok {
		return strings.TrimSpace(v.Field(model.FieldAmount) + " " + cur)
	}
	return fmt.Sprintf("%d.%02d %s", n/100, n%100, cur)
}

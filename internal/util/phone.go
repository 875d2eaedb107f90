package util

import (
	"regexp"
	"strings"

	"github.com/Thetimii/dashboard-sub001/internal/model"
)

var nonDigits = regexp.MustCompile(`\D+`)

type callingCode struct {
	code           string
	minNSN, maxNSN int // national significant number length
}

// countries maps ISO-3166 alpha-2 hints to their calling code.
var countries = map[string]callingCode{
	"US": {"1", 10, 10},
	"CA": {"1", 10, 10},
	"GB": {"44", 9, 10},
	"IE": {"353", 7, 9},
	"DE": {"49", 6, 11},
	"AT": {"43", 4, 13},
	"CH": {"41", 9, 9},
	"FR": {"33", 9, 9},
	"IT": {"39", 6, 11},
	"ES": {"34", 9, 9},
	"NL": {"31", 9, 9},
	"BE": {"32", 8, 9},
	"SE": {"46", 7, 9},
	"DK": {"45", 8, 8},
	"NO": {"47", 8, 8},
	"AU": {"61", 9, 9},
	"NZ": {"64", 8, 10},
	"IR": {"98", 10, 10},
}

// NormalizePhone reduces raw input to digits with a leading country calling code
// (E.164 without the plus sign). A "+" or "00" prefix means the code is already
// there; otherwise a trunk "0" is dropped and the code implied by countryHint is
// prepended.
func NormalizePhone(raw, countryHint string) (string, error) {
	s := strings.TrimSpace(raw)
	international := strings.HasPrefix(s, "+") || strings.HasPrefix(s, "00")

	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return "", &model.ValidationError{Field: "phone", Reason: "no digits"}
	}

	if international {
		return strings.TrimPrefix(digits, "00"), nil
	}

	hint := strings.ToUpper(strings.TrimSpace(countryHint))
	cc, ok := countries[hint]
	if !ok {
		return "", &model.ValidationError{Field: "phone", Reason: "unsupported country hint " + countryHint}
	}

	// already carries the calling code, just without "+"
	if strings.HasPrefix(digits, cc.code) {
		if n := len(digits) - len(cc.code); n >= cc.minNSN && n <= cc.maxNSN {
			return digits, nil
		}
	}

	national := strings.TrimPrefix(digits, "0")
	return cc.code + national, nil
}

package model

// ProviderResult is the outcome of one sub-dispatch attempt.
type ProviderResult struct {
	ProviderName string `json:"provider"`
	Succeeded    bool   `json:"succeeded"`
	ErrorDetail  string `json:"error,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
	Err          error  `json:"-"`
}

func Succeeded(provider, externalID string) ProviderResult {
	return ProviderResult{ProviderName: provider, Succeeded: true, ExternalID: externalID}
}

func Failed(provider string, err error) ProviderResult {
	r := ProviderResult{ProviderName: provider, Err: err}
	if err != nil {
		r.ErrorDetail = err.Error()
	}
	return r
}

// DispatchOutcome aggregates both sub-dispatches. A nil result means that path
// was intentionally skipped.
type DispatchOutcome struct {
	DispatchID       string          `json:"dispatch_id"`
	Kind             EventKind       `json:"kind"`
	EmailResult      *ProviderResult `json:"email,omitempty"`
	ConversionResult *ProviderResult `json:"conversion,omitempty"`
	OverallSucceeded bool            `json:"overall_succeeded"`
}

// Aggregate sets OverallSucceeded from the attempted results.
func (o *DispatchOutcome) Aggregate() {
	o.OverallSucceeded = true
	for _, r := range []*ProviderResult{o.EmailResult, o.ConversionResult} {
		if r != nil && !r.Succeeded {
			o.OverallSucceeded = false
		}
	}
}

package model

type Audience string

const (
	AudienceInternal Audience = "internal"
	AudienceCustomer Audience = "customer"
)

func (a Audience) String() string { return string(a) }

// EmailMessage is the rendered form of a lifecycle event, owned by one dispatch.
type EmailMessage struct {
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	Text      string `json:"text"`
	Recipient string `json:"recipient"`
	DedupKey  string `json:"-"`
}

package model

// Envelope is the payload published to Kafka for asynchronous dispatch.
type Envelope struct {
	ID    string         `json:"id"` // ULID
	Event LifecycleEvent `json:"event"`
}

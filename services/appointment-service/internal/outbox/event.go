package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the appointment core. Notification delivery and
// other downstream concerns consume these topics; nothing in this service
// reads them back.
const (
	EventAppointmentCreated       = "appointments.created.v1"
	EventAppointmentStatusChanged = "appointments.status.changed.v1"
)

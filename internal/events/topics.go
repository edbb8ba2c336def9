package events

// Topic constants for escrow lifecycle events.
const (
	TopicEscrowCreated  = "escrow.created"
	TopicEscrowCaptured = "escrow.captured"
	TopicEscrowRefunded = "escrow.refunded"
	TopicEscrowFailed   = "escrow.failed"
)

// DefaultTopics returns the canonical list of topics emitted by the ledger.
func DefaultTopics() []string {
	return []string{
		TopicEscrowCreated,
		TopicEscrowCaptured,
		TopicEscrowRefunded,
		TopicEscrowFailed,
	}
}

// TopicForStatus maps an escrow status to the topic announcing it.
func TopicForStatus(status string) (string, bool) {
	switch status {
	case "created":
		return TopicEscrowCreated, true
	case "captured":
		return TopicEscrowCaptured, true
	case "refunded":
		return TopicEscrowRefunded, true
	case "failed":
		return TopicEscrowFailed, true
	default:
		return "", false
	}
}

// Marketplace activity topics. They go to the broker only; the earnings
// worker consumes escrow topics.
const (
	TopicSlotBooked    = "booking.slot_booked"
	TopicSlotCancelled = "booking.slot_cancelled"
	TopicJobUpdated    = "job.updated"
)

package domain

import "strings"

const (
	MessageTypeInviteAccepted  = "invite.accepted"
	MessageTypeProposalOpened  = "proposal.opened"
	MessageTypeProposalClosed  = "proposal.closed"
	MessageTypeDuesReminder    = "dues.reminder"
	MessageTypePaymentReceived = "payment.received"
	MessageTypeImportCompleted = "import.completed"
)

// DeliveryPolicy defines the service-owned effective channels for one message type.
type DeliveryPolicy struct {
	InApp bool
	Email bool
}

// NormalizeMessageType normalizes a producer-provided message type token.
func NormalizeMessageType(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ResolveDeliveryPolicy returns the effective channel policy for one message type.
func ResolveDeliveryPolicy(messageType string) DeliveryPolicy {
	switch NormalizeMessageType(messageType) {
	case MessageTypeProposalOpened, MessageTypeProposalClosed, MessageTypeDuesReminder:
		return DeliveryPolicy{InApp: true, Email: true}
	default:
		return DeliveryPolicy{InApp: true, Email: false}
	}
}

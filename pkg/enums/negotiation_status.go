package enums

import "fmt"

// NegotiationStatus is the offer lifecycle state. REJECTED and ORDERED are terminal.
type NegotiationStatus string

const (
	NegotiationStatusPending  NegotiationStatus = "PENDING"
	NegotiationStatusAccepted NegotiationStatus = "ACCEPTED"
	NegotiationStatusRejected NegotiationStatus = "REJECTED"
	NegotiationStatusOrdered  NegotiationStatus = "ORDERED"
)

var validNegotiationStatuses = []NegotiationStatus{
	NegotiationStatusPending,
	NegotiationStatusAccepted,
	NegotiationStatusRejected,
	NegotiationStatusOrdered,
}

// IsValid checks whether the given status matches the canonical enum.
func (s NegotiationStatus) IsValid() bool {
	for _, candidate := range validNegotiationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this state.
func (s NegotiationStatus) IsTerminal() bool {
	return s == NegotiationStatusRejected || s == NegotiationStatusOrdered
}

// ParseNegotiationStatus converts raw strings into NegotiationStatus.
func ParseNegotiationStatus(value string) (NegotiationStatus, error) {
	for _, candidate := range validNegotiationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid negotiation status %q", value)
}

package enums

import "fmt"

// TrustedRequestStatus is the admin review state of a seller application.
type TrustedRequestStatus string

const (
	TrustedRequestStatusPending  TrustedRequestStatus = "pending"
	TrustedRequestStatusApproved TrustedRequestStatus = "approved"
	TrustedRequestStatusRejected TrustedRequestStatus = "rejected"
)

var validTrustedRequestStatuses = []TrustedRequestStatus{
	TrustedRequestStatusPending,
	TrustedRequestStatusApproved,
	TrustedRequestStatusRejected,
}

// IsValid checks whether the given status matches the canonical enum.
func (s TrustedRequestStatus) IsValid() bool {
	for _, candidate := range validTrustedRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTrustedRequestStatus converts raw strings into TrustedRequestStatus.
func ParseTrustedRequestStatus(value string) (TrustedRequestStatus, error) {
	for _, candidate := range validTrustedRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trusted request status %q", value)
}

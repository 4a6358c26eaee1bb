package shared

import "fmt"

// ApprovalLockKey builds redis keys guarding approval transitions.
func ApprovalLockKey(requestID string) string {
	return fmt.Sprintf("approval:request:%s:lock", requestID)
}

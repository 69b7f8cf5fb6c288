package scheduler

import "strings"

// InvocationKey identifies the live job of one request stage. The correlation
// id keeps keys unique across successive requests on the same handle.
func InvocationKey(handleID, action, correlationID string) string {
	return strings.Join([]string{"handle", handleID, action, correlationID}, ":")
}

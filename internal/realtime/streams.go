package realtime

// Streams a client may subscribe to.
const (
	// StreamNotifications carries in-app notifications for the connected employee.
	StreamNotifications = "notifications"
	// StreamApprovals carries approval requests assigned to, or filed by, the employee.
	StreamApprovals = "approvals"
	// StreamAccess carries access decisions for the employee.
	StreamAccess = "access"
)

// Known lists every stream served by the hub.
var Known = []string{StreamNotifications, StreamApprovals, StreamAccess}

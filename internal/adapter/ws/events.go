package ws

// Event type constants for frames pushed to observers.
const (
	EventSnapshot  = "fleet.snapshot"
	EventKeepalive = "keepalive"
)

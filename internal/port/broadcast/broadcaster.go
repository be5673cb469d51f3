// Package broadcast defines the port for pushing live updates to observers.
package broadcast

import "context"

// Broadcaster sends typed frames to all subscribed observers. A slow
// observer misses frames; it is never blocked on.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all subscribed observers.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// ObserverCount returns the number of active observers.
	ObserverCount() int
}

package events

import "github.com/asaskevich/EventBus"

// New creates the application event bus. The bus is owned by the runtime
// context object and handed to components explicitly; there is no package
// global.
func New() EventBus.Bus {
	return EventBus.New()
}

// Event topics for application-wide coordination
const (
	// Shutdown events
	EventShutdownRequested = "app:shutdown:requested"

	// Device presence transitions
	EventDeviceConnected    = "device:connected"
	EventDeviceDisconnected = "device:disconnected"

	// Sync events
	EventSyncPassCompleted = "sync:pass:completed"

	// Watcher events
	EventWatcherStarted = "watcher:started"
	EventWatcherStopped = "watcher:stopped"
)

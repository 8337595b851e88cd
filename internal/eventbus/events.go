package eventbus

// Event types published by the watcher and the command router.
const (
	TickStarted       = "tick.started"
	TickUnchanged     = "tick.unchanged"
	TickChanged       = "tick.changed"
	TickFailed        = "tick.failed"
	SubscriberToggled = "subscriber.toggled"
)

// Toggle is the Data of a SubscriberToggled event.
type Toggle struct {
	ID         string
	Subscribed bool
}

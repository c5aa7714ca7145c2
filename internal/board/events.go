package board

// Event types pushed to connected clients. Clients treat them as hints to
// re-fetch; they never carry hidden content.
const (
	EventConfessionApproved = "confession_approved"
	EventConfessionRemoved  = "confession_removed"
	EventCounts             = "counts"
	EventComment            = "comment"
)

// Event is a feed change notification.
type Event struct {
	Type         string `json:"type"`
	ConfessionID string `json:"confessionId"`
	Likes        *int   `json:"likes,omitempty"`
	Dislikes     *int   `json:"dislikes,omitempty"`
}

// Notifier fans events out to listeners. Publish must not block.
type Notifier interface {
	Publish(Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationKind classifies a transient user-facing message.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyInfo    NotificationKind = "info"
)

// Notification is an auto-dismissing message shown after a user action.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	TTL       time.Duration    `json:"ttl"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Expired reports whether the notification should no longer be displayed at now.
func (n Notification) Expired(now time.Time) bool {
	return !now.Before(n.CreatedAt.Add(n.TTL))
}

// Notifier fans notifications out to subscribers and remembers the ones still visible.
type Notifier struct {
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mutex       sync.Mutex
	active      []Notification
	subscribers map[int]chan Notification
	next        int
}

// NewNotifier creates a notifier whose messages live for ttl.
func NewNotifier(ttl time.Duration, logger *zap.Logger) *Notifier {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &Notifier{
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[int]chan Notification),
	}
}

// Publish records and broadcasts a notification.
func (n *Notifier) Publish(kind NotificationKind, message string) Notification {
	notification := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		TTL:       n.ttl,
		CreatedAt: n.now(),
	}

	n.logger.Debug("Notification",
		zap.String("kind", string(kind)),
		zap.String("message", message))

	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.pruneUnsafe()
	n.active = append(n.active, notification)
	for _, ch := range n.subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
	return notification
}

// Active returns the notifications that have not expired yet, oldest first.
func (n *Notifier) Active() []Notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.pruneUnsafe()
	return append([]Notification(nil), n.active...)
}

// Subscribe returns a channel of new notifications and a cancel function.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	id := n.next
	n.next++
	ch := make(chan Notification, 8)
	n.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mutex.Lock()
			defer n.mutex.Unlock()
			delete(n.subscribers, id)
			close(ch)
		})
	}
}

// pruneUnsafe requires n.mutex.
func (n *Notifier) pruneUnsafe() {
	now := n.now()
	kept := n.active[:0]
	for _, notification := range n.active {
		if !notification.Expired(now) {
			kept = append(kept, notification)
		}
	}
	n.active = kept
}

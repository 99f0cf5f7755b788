package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/metrics"
)

const (
	// KindOrder marks notifications about a shipment order.
	KindOrder = "order"
)

var (
	ErrNotFound = errors.New("notification not found")
	ErrConflict = errors.New("notification was modified concurrently")
)

// Notification is a message shown to a user about one of their orders.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	OrderID   string `json:"orderId"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}

// Message describes a notification payload handed to a Notifier.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is the delivery sink the API server runs with: every stored
// notification becomes one structured "notification.delivered" log record,
// for log shippers to forward.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send never fails; a nil notifier or logger drops the message.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "notification.delivered",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}

// Emitter creates and stores notifications. Callers that must write a
// notification together with other documents use Compose and Write, commit
// the batch themselves and then call Delivered.
type Emitter struct {
	store    docstore.Store
	notifier Notifier
	now      func() time.Time
}

// NewEmitter builds an Emitter. notifier may be nil.
func NewEmitter(store docstore.Store, notifier Notifier) *Emitter {
	return &Emitter{store: store, notifier: notifier, now: time.Now}
}

// WithClock replaces the time source. Used in tests.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Compose builds an unread notification stamped with the current time.
func (e *Emitter) Compose(userID, orderID, message string) Notification {
	return Notification{
		ID:        ksuid.New().String(),
		UserID:    userID,
		OrderID:   orderID,
		Message:   message,
		CreatedAt: e.now().UnixMilli(),
	}
}

// Write returns the insert of n for use in a batch.
func (e *Emitter) Write(n Notification) (docstore.Write, error) {
	return docstore.Put(docstore.CollectionNotifications, n.ID, n, 0)
}

// Delivered hands a committed notification to the notifier. Notifier errors
// never fail the operation that produced the notification.
func (e *Emitter) Delivered(ctx context.Context, n Notification) {
	metrics.NotificationsTotal.Inc()
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Send(ctx, Message{Kind: KindOrder, Destination: n.UserID, Body: n.Message})
}

// Notify composes and stores a standalone notification.
func (e *Emitter) Notify(ctx context.Context, userID, orderID, message string) (Notification, error) {
	n := e.Compose(userID, orderID, message)
	w, err := e.Write(n)
	if err != nil {
		return Notification{}, err
	}
	if err := e.store.Apply(ctx, w); err != nil {
		return Notification{}, err
	}
	e.Delivered(ctx, n)
	return n, nil
}

// ListByUser returns the user's notifications, newest first.
func (e *Emitter) ListByUser(ctx context.Context, userID string) ([]Notification, error) {
	q := docstore.Where("userId", userID).SortBy("createdAt", true)
	return docstore.QueryInto[Notification](ctx, e.store, docstore.CollectionNotifications, q)
}

// MarkRead flags a notification of userID as read. Notifications of other
// users are reported as missing.
func (e *Emitter) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	var n Notification
	version, err := docstore.GetInto(ctx, e.store, docstore.CollectionNotifications, id, &n)
	if errors.Is(err, docstore.ErrNotFound) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotFound
	}
	if n.Read {
		return n, nil
	}

	n.Read = true
	w, err := docstore.Put(docstore.CollectionNotifications, n.ID, n, version)
	if err != nil {
		return Notification{}, err
	}
	if err := e.store.Apply(ctx, w); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			metrics.StoreConflictsTotal.WithLabelValues("mark_read").Inc()
			return Notification{}, ErrConflict
		}
		return Notification{}, err
	}
	return n, nil
}

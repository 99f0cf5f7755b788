package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/identity"
	"github.com/cargo-track/cargo_track/internal/metrics"
	"github.com/cargo-track/cargo_track/internal/notification"
	"github.com/cargo-track/cargo_track/internal/validation"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOwnerNotFound = errors.New("order owner not found")
	// ErrConflict means the order changed between read and write. Nothing was
	// written; the caller may retry.
	ErrConflict = errors.New("order was modified concurrently")
)

const createdNote = "Order created by administrator"

var createMessages = map[string]string{
	"userId":         "Select the order owner",
	"trackingNumber": "Tracking number is required",
	"title":          "Title is required",
	"weight":         "Weight must be a positive number",
	"from":           "Origin is required",
	"to":             "Destination is required",
}

// Owners resolves order owners. Implemented by *identity.Service.
type Owners interface {
	Get(ctx context.Context, id string) (identity.User, error)
	List(ctx context.Context, f identity.ListFilter) ([]identity.User, error)
}

// Service creates orders, records status changes and answers order queries.
// Every write that produces a notification commits the order and the
// notification in one batch.
type Service struct {
	store    docstore.Store
	owners   Owners
	notifier *notification.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store docstore.Store, owners Owners, notifier *notification.Emitter, logger *slog.Logger) *Service {
	return &Service{store: store, owners: owners, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock replaces the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a new order for an existing user and notifies the owner.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if err := validation.Struct(in, createMessages); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(string(in.Status)) == "" {
		in.Status = StatusInTransit
	}
	st, err := ParseStatus(string(in.Status))
	if err != nil {
		return Order{}, err
	}
	in.Status = st

	owner, err := s.owners.Get(ctx, in.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return Order{}, ErrOwnerNotFound
	}
	if err != nil {
		return Order{}, err
	}

	now := s.now().UnixMilli()
	o := Order{
		ID:             ksuid.New().String(),
		UserID:         owner.ID,
		TrackingNumber: strings.TrimSpace(in.TrackingNumber),
		Status:         in.Status,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Weight:         in.Weight,
		From:           strings.TrimSpace(in.From),
		To:             strings.TrimSpace(in.To),
		CreatedAt:      now,
		UpdatedAt:      now,
		StatusHistory:  []HistoryEntry{{Status: in.Status, Timestamp: now, Note: createdNote}},
	}

	msg := fmt.Sprintf("New order %s added to the system", o.TrackingNumber)
	if err := s.commit(ctx, o, 0, msg); err != nil {
		return Order{}, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(o.Status)).Inc()
	s.log("order.created", o)
	return o, nil
}

// UpdateStatus appends a history entry and moves the order to status. The
// write is rejected with ErrConflict if another update landed first.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status, note string) (Order, error) {
	o, version, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	st, err := ParseStatus(string(status))
	if err != nil {
		return Order{}, err
	}

	// updatedAt must advance even when the clock has not.
	now := s.now().UnixMilli()
	if now <= o.UpdatedAt {
		now = o.UpdatedAt + 1
	}
	o.Status = st
	o.UpdatedAt = now
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Status: st, Timestamp: now, Note: strings.TrimSpace(note)})

	msg := "Order status changed: " + StatusLabel(st)
	if err := s.commit(ctx, o, version, msg); err != nil {
		return Order{}, err
	}

	metrics.StatusUpdatesTotal.WithLabelValues(string(st)).Inc()
	s.log("order.status_updated", o)
	return o, nil
}

// Notify sends the owner a reminder about an order without changing it.
func (s *Service) Notify(ctx context.Context, orderID string) (notification.Notification, error) {
	o, _, err := s.load(ctx, orderID)
	if err != nil {
		return notification.Notification{}, err
	}
	return s.notifier.Notify(ctx, o.UserID, o.ID, "Update on order "+o.TrackingNumber)
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	o, _, err := s.load(ctx, id)
	return o, err
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	q := docstore.Where("userId", userID).SortBy("createdAt", true)
	return docstore.QueryInto[Order](ctx, s.store, docstore.CollectionOrders, q)
}

// ListAll returns every order, most recently updated first, keeping those
// whose owner matches search.
func (s *Service) ListAll(ctx context.Context, search string) (Overview, error) {
	orders, err := docstore.QueryInto[Order](ctx, s.store, docstore.CollectionOrders, docstore.Query{}.SortBy("updatedAt", true))
	if err != nil {
		return Overview{}, err
	}
	users, err := s.owners.List(ctx, identity.ListFilter{})
	if err != nil {
		return Overview{}, err
	}
	byID := make(map[string]identity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	search = strings.TrimSpace(search)
	out := Overview{Total: len(orders), Orders: make([]OwnedOrder, 0, len(orders))}
	for _, o := range orders {
		item := OwnedOrder{Order: o, OwnerLabel: "Unknown"}
		if u, ok := byID[o.UserID]; ok {
			item.Owner = &u
			item.OwnerLabel = fmt.Sprintf("%s (%s)", u.FullName(), u.FinCode)
		}
		if search != "" && (item.Owner == nil || !identity.Matches(*item.Owner, search)) {
			continue
		}
		out.Orders = append(out.Orders, item)
	}
	out.Matched = len(out.Orders)
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (Order, int64, error) {
	var o Order
	version, err := docstore.GetInto(ctx, s.store, docstore.CollectionOrders, id, &o)
	if errors.Is(err, docstore.ErrNotFound) {
		return Order{}, 0, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, 0, err
	}
	return o, version, nil
}

// commit writes o (expected at version) together with a notification to its
// owner.
func (s *Service) commit(ctx context.Context, o Order, version int64, message string) error {
	orderWrite, err := docstore.Put(docstore.CollectionOrders, o.ID, o, version)
	if err != nil {
		return err
	}
	n := s.notifier.Compose(o.UserID, o.ID, message)
	noteWrite, err := s.notifier.Write(n)
	if err != nil {
		return err
	}

	if err := s.store.Apply(ctx, orderWrite, noteWrite); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			metrics.StoreConflictsTotal.WithLabelValues("order").Inc()
			return ErrConflict
		}
		return err
	}
	s.notifier.Delivered(ctx, n)
	return nil
}

func (s *Service) log(event string, o Order) {
	if s.logger == nil {
		return
	}
	s.logger.Info(event,
		slog.String("order_id", o.ID),
		slog.String("user_id", o.UserID),
		slog.String("tracking_number", o.TrackingNumber),
		slog.String("status", string(o.Status)),
	)
}

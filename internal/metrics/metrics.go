// Package metrics holds the Prometheus collectors of the service and the
// handler that exposes them.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginsTotal counts login attempts by result (ok, invalid, error).
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargo_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	// RegistrationsTotal counts successful registrations.
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cargo_registrations_total",
		Help: "Successful user registrations",
	})

	// OrdersCreatedTotal counts created orders by initial status.
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargo_orders_created_total",
		Help: "Orders created by initial status",
	}, []string{"status"})

	// StatusUpdatesTotal counts status changes by new status.
	StatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargo_order_status_updates_total",
		Help: "Order status updates by new status",
	}, []string{"status"})

	// StoreConflictsTotal counts writes rejected by a version check.
	StoreConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargo_store_conflicts_total",
		Help: "Writes rejected because the document changed concurrently",
	}, []string{"operation"})

	// NotificationsTotal counts persisted notifications.
	NotificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cargo_notifications_total",
		Help: "Notifications persisted",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Package orders is the order ledger: orders and their outbox events in PostgreSQL.
package orders

import (
	"encoding/json"
	"errors"
	"time"
)

const EventTypeOrderPlaced = "order.placed"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

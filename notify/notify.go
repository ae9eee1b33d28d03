// Package notify implements the notification dispatcher: a best-effort
// fan-out of notification/announcement/message ingest events onto an AMQP
// exchange, consumed by whatever external delivery system (push, SMS, email)
// the ERP-side deployment wires in. The pull-based sync protocol, not this
// dispatcher, is the path clients must trust; a dispatch failure is logged
// and counted, never retried inline and never surfaced to the ingest caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/entity"
)

// DeliveryEvent is the payload fanned out to the exchange after a
// successful ingest write for a notification/announcement/message entity.
// It carries the journal entry id and the raw target-set fields so a
// downstream worker can re-evaluate audience without touching the cache.
type DeliveryEvent struct {
	EntityType      entity.Type `json:"entity_type"`
	EntityID        string      `json:"entity_id"`
	JournalEntryID  string      `json:"journal_entry_id,omitempty"`
	Version         int64       `json:"version"`
	IdempotencyKey  string      `json:"idempotency_key,omitempty"`
	TargetUsers     []string    `json:"target_users,omitempty"`
	TargetGroups    []string    `json:"target_groups,omitempty"`
	TargetRegions   []string    `json:"target_regions,omitempty"`
	TargetProvinces []string    `json:"target_provinces,omitempty"`
	TargetCities    []string    `json:"target_cities,omitempty"`
	TargetDevices   []string    `json:"target_devices,omitempty"`
	TargetNonReg    bool        `json:"target_non_registered,omitempty"`
	OwnerUserID     string      `json:"owner_user_id,omitempty"`
}

// Dispatcher publishes DeliveryEvents to a durable fanout exchange.
type Dispatcher struct {
	connection AMQPConnection
	channel    AMQPChannel
	exchange   string
	enabled    bool
}

// New connects to the broker and declares the configured exchange. When
// cfg.Enabled is false, the returned Dispatcher's Dispatch is a no-op —
// letting syncserver run without a broker configured.
func New(cfg config.NotificationConfig) (*Dispatcher, error) {
	if !cfg.Enabled {
		return &Dispatcher{enabled: false}, nil
	}
	return NewWithDialer(cfg, &RealAMQPDialer{})
}

// NewWithDialer builds a Dispatcher using dialer, letting tests inject a
// MockAMQPDialer in place of a real broker connection.
func NewWithDialer(cfg config.NotificationConfig, dialer AMQPDialer) (*Dispatcher, error) {
	conn, err := dialer.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}

	return &Dispatcher{
		connection: conn,
		channel:    ch,
		exchange:   cfg.ExchangeName,
		enabled:    true,
	}, nil
}

// ShouldDispatch reports whether t's ingest events should be fanned out at
// all — only notification, announcement, and message entities have an
// external delivery side channel.
func ShouldDispatch(t entity.Type) bool {
	switch t {
	case entity.TypeNotification, entity.TypeAnnouncement, entity.TypeMessage:
		return true
	default:
		return false
	}
}

// Dispatch publishes event to the exchange. Callers should treat a non-nil
// error as something to log and count, never as a reason to fail the ingest
// request that triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context, event DeliveryEvent) error {
	if !d.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	err = d.channel.Publish(d.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish event for %s/%s: %w", event.EntityType, event.EntityID, err)
	}
	return nil
}

// Close releases the channel and connection. Safe to call on a disabled
// Dispatcher.
func (d *Dispatcher) Close() error {
	if !d.enabled {
		return nil
	}
	if d.channel != nil {
		d.channel.Close()
	}
	if d.connection != nil {
		return d.connection.Close()
	}
	return nil
}

package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

var _ events.EventStore = (*PostgresEventStore)(nil)

// PostgresEventStore keeps the append-only saga event log of every booking.
// Events are keyed by id, so a redelivered event is stored once.
type PostgresEventStore struct {
	db *sqlx.DB
}

// NewPostgresEventStore creates a new PostgresEventStore
func NewPostgresEventStore(db *sqlx.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

type postgresEvent struct {
	ID            string    `db:"id"`
	BookingID     string    `db:"booking_id"`
	UserID        string    `db:"user_id"`
	EventType     string    `db:"event_type"`
	Version       string    `db:"version"`
	Data          []byte    `db:"data"`
	Metadata      []byte    `db:"metadata"`
	OccurredAt    time.Time `db:"occurred_at"`
	CorrelationID string    `db:"correlation_id"`
}

// Append stores the events, ignoring ids that are already present
func (es *PostgresEventStore) Append(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := es.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO saga_event_log (
			id, booking_id, user_id, event_type, version, data, metadata,
			occurred_at, correlation_id
		) VALUES (
			:id, :booking_id, :user_id, :event_type, :version, :data, :metadata,
			:occurred_at, :correlation_id
		)
		ON CONFLICT (id) DO NOTHING`

	for _, event := range evts {
		pgEvent, err := es.toPostgres(event)
		if err != nil {
			return errors.Wrap(err, "failed to convert event")
		}

		if _, err := tx.NamedExecContext(ctx, query, pgEvent); err != nil {
			return errors.Wrap(err, "failed to insert event")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit event log")
}

// GetEvents returns the log of a booking in the order it was recorded
func (es *PostgresEventStore) GetEvents(ctx context.Context, bookingID models.ID) ([]*events.Event, error) {
	query := `
		SELECT id, booking_id, user_id, event_type, version, data, metadata,
			   occurred_at, correlation_id
		FROM saga_event_log
		WHERE booking_id = $1
		ORDER BY sequence ASC`

	var pgEvents []postgresEvent
	if err := es.db.SelectContext(ctx, &pgEvents, query, bookingID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}

	result := make([]*events.Event, len(pgEvents))
	for i := range pgEvents {
		event, err := es.toDomain(&pgEvents[i])
		if err != nil {
			return nil, err
		}
		result[i] = event
	}

	return result, nil
}

func (es *PostgresEventStore) toPostgres(event *events.Event) (*postgresEvent, error) {
	data, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event data")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event metadata")
	}

	return &postgresEvent{
		ID:            event.ID.String(),
		BookingID:     event.AggregateID.String(),
		UserID:        event.UserID.String(),
		EventType:     event.EventType,
		Version:       event.Version,
		Data:          data,
		Metadata:      metadata,
		OccurredAt:    event.Timestamp,
		CorrelationID: event.CorrelationID.String(),
	}, nil
}

func (es *PostgresEventStore) toDomain(pgEvent *postgresEvent) (*events.Event, error) {
	metadata := make(events.Metadata)
	if len(pgEvent.Metadata) > 0 {
		if err := json.Unmarshal(pgEvent.Metadata, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal event metadata")
		}
	}

	return &events.Event{
		ID:            models.ID(pgEvent.ID),
		AggregateID:   models.ID(pgEvent.BookingID),
		UserID:        models.ID(pgEvent.UserID),
		Topic:         events.Topic(pgEvent.EventType),
		EventType:     pgEvent.EventType,
		Version:       pgEvent.Version,
		Data:          json.RawMessage(pgEvent.Data),
		Metadata:      metadata,
		Timestamp:     pgEvent.OccurredAt,
		CorrelationID: models.ID(pgEvent.CorrelationID),
	}, nil
}

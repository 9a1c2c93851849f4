package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"live-auction/internal/domain"
	"time"
)

// EventRepository is the analytics audit trail of committed events.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// SaveEvent appends env once; redelivered events are ignored. inserted is
// false for a duplicate.
func (r *EventRepository) SaveEvent(ctx context.Context, env domain.Envelope) (inserted bool, err error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return false, err
	}

	query := `
        INSERT IGNORE INTO auction_events
            (event_id, auction_id, event_type, version, producer, payload, occurred_at, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	e := env.Event
	result, err := r.db.ExecContext(ctx, query,
		e.ID, e.AuctionID, string(e.Type), e.Version, env.Producer,
		payload, e.OccurredAt, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetEventHistory returns the recorded events of one auction in version order.
func (r *EventRepository) GetEventHistory(ctx context.Context, auctionID string) ([]domain.Event, error) {
	query := `
        SELECT payload
        FROM auction_events
        WHERE auction_id = ?
        ORDER BY version ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e domain.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

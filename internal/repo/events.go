package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"meetline/internal/db"
	"meetline/internal/domain"
)

// listEvents returns a meeting's history oldest first. limit <= 0 means all.
func (r Repo) listEvents(ctx context.Context, q sq.BaseRunner, meetingID string, limit int) ([]domain.Event, error) {
	query := r.DB.SQ.Select("id", "ts", "type", "meeting_id", "entity_kind", "entity_id", "payload").
		From("events").Where(sq.Eq{"meeting_id": meetingID}).OrderBy("id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	rows, err := query.RunWith(q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var (
			e       domain.Event
			ts      string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.MeetingID, &e.EntityKind, &e.EntityID, &payload); err != nil {
			return nil, err
		}
		if e.TS, err = db.ParseTime(ts); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

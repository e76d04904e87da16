package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"meetline/internal/db"
)

// Event types recorded in a meeting's history.
const (
	MeetingCreated  = "meeting.created"
	MeetingStatus   = "meeting.status"
	MeetingUpdated  = "meeting.updated"
	MeetingAnalyzed = "meeting.analyzed"
	NoteAdded       = "note.added"
	NoteEdited      = "note.edited"
	NoteDeleted     = "note.deleted"
	NoteConverted   = "note.converted"
)

type Writer struct {
	DB  *db.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, meetingID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.SQ.Insert("events").
		Columns("ts", "type", "meeting_id", "entity_kind", "entity_id", "payload").
		Values(db.FormatTime(w.Now()), evtType, meetingID, entityKind, entityID, string(data)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

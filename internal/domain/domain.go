package domain

import "time"

type MeetingStatus string

const (
	StatusPlanned    MeetingStatus = "planned"
	StatusInProgress MeetingStatus = "in_progress"
	StatusCompleted  MeetingStatus = "completed"
	StatusCancelled  MeetingStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s MeetingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type NoteSource string

const (
	SourceManual NoteSource = "manual"
	SourceVoice  NoteSource = "voice"
	SourceAI     NoteSource = "ai"
)

func (s NoteSource) Valid() bool {
	switch s {
	case SourceManual, SourceVoice, SourceAI:
		return true
	}
	return false
}

type Meeting struct {
	ID              string        `json:"id"`
	Status          MeetingStatus `json:"status" enum:"planned,in_progress,completed,cancelled"`
	Title           string        `json:"title"`
	Date            string        `json:"date,omitempty"`
	Time            string        `json:"time,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	TypeID          *string       `json:"type_id,omitempty"`
	ProjectID       *string       `json:"project_id,omitempty"`
	ParticipantIDs  []string      `json:"participant_ids"`
	Agenda          string        `json:"agenda,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Notes           []Note        `json:"notes"`
	RelatedTaskIDs  []string      `json:"related_task_ids"`
	History         []Event       `json:"history,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers can render without holding locks.
func (m Meeting) Clone() Meeting {
	out := m
	if m.TypeID != nil {
		v := *m.TypeID
		out.TypeID = &v
	}
	if m.ProjectID != nil {
		v := *m.ProjectID
		out.ProjectID = &v
	}
	if m.StartedAt != nil {
		v := *m.StartedAt
		out.StartedAt = &v
	}
	if m.EndedAt != nil {
		v := *m.EndedAt
		out.EndedAt = &v
	}
	out.ParticipantIDs = append([]string(nil), m.ParticipantIDs...)
	out.RelatedTaskIDs = append([]string(nil), m.RelatedTaskIDs...)
	out.History = append([]Event(nil), m.History...)
	out.Notes = make([]Note, len(m.Notes))
	for i, n := range m.Notes {
		out.Notes[i] = n.Clone()
	}
	return out
}

// HasTask reports whether id is already linked to the meeting.
func (m Meeting) HasTask(id string) bool {
	for _, t := range m.RelatedTaskIDs {
		if t == id {
			return true
		}
	}
	return false
}

// NoteIndex returns the position of the note or -1.
func (m Meeting) NoteIndex(noteID int64) int {
	for i, n := range m.Notes {
		if n.ID == noteID {
			return i
		}
	}
	return -1
}

// MeetingBrief is the roster entry for a meeting.
type MeetingBrief struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Status MeetingStatus `json:"status" enum:"planned,in_progress,completed,cancelled"`
	Date   string        `json:"date,omitempty"`
	Time   string        `json:"time,omitempty"`
}

type Note struct {
	ID        int64      `json:"id"`
	MeetingID string     `json:"meeting_id"`
	Text      string     `json:"text"`
	Source    NoteSource `json:"source" enum:"manual,voice,ai"`
	TaskID    *string    `json:"task_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (n Note) Clone() Note {
	out := n
	if n.TaskID != nil {
		v := *n.TaskID
		out.TaskID = &v
	}
	return out
}

// Converted reports whether the note has been promoted to a task.
func (n Note) Converted() bool {
	return n.TaskID != nil && *n.TaskID != ""
}

type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	MeetingID string    `json:"meeting_id,omitempty"`
	NoteID    *int64    `json:"note_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteInput is what the analysis capability sees of a note.
type NoteInput struct {
	Text   string     `json:"text"`
	Source NoteSource `json:"source" enum:"manual,voice,ai"`
}

// SummaryResult is the structured suggestion set returned by analysis.
type SummaryResult struct {
	Summary   string   `json:"summary,omitempty"`
	Tasks     []string `json:"tasks,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// Empty reports whether the analysis produced nothing at all.
func (r SummaryResult) Empty() bool {
	return r.Summary == "" && len(r.Tasks) == 0 && len(r.Decisions) == 0 && len(r.Questions) == 0
}

type Event struct {
	ID         int64          `json:"id"`
	TS         time.Time      `json:"ts"`
	Type       string         `json:"type"`
	MeetingID  string         `json:"meeting_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// MeetingPatch is a partial meeting update; nil fields are left alone.
type MeetingPatch struct {
	Status  *MeetingStatus `json:"status,omitempty"`
	Title   *string        `json:"title,omitempty"`
	Summary *string        `json:"summary,omitempty"`
	Agenda  *string        `json:"agenda,omitempty"`
}

// MeetingDraft holds the fields accepted when scheduling a meeting.
type MeetingDraft struct {
	Title           string   `json:"title"`
	Date            string   `json:"date,omitempty"`
	Time            string   `json:"time,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	TypeID          *string  `json:"type_id,omitempty"`
	ProjectID       *string  `json:"project_id,omitempty"`
	ParticipantIDs  []string `json:"participant_ids,omitempty"`
	Agenda          string   `json:"agenda,omitempty"`
}

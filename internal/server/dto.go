package server

import (
	"meetline/internal/domain"
)

// Request payloads

type CreateMeetingRequest struct {
	Title           string   `json:"title" minLength:"1"`
	Date            string   `json:"date,omitempty" example:"2024-05-14"`
	Time            string   `json:"time,omitempty" example:"10:30"`
	DurationMinutes int      `json:"duration_minutes,omitempty" minimum:"0"`
	TypeID          *string  `json:"type_id,omitempty"`
	ProjectID       *string  `json:"project_id,omitempty"`
	ParticipantIDs  []string `json:"participant_ids,omitempty"`
	Agenda          string   `json:"agenda,omitempty"`
}

type UpdateMeetingRequest struct {
	Status  *domain.MeetingStatus `json:"status,omitempty" enum:"planned,in_progress,completed,cancelled"`
	Title   *string               `json:"title,omitempty"`
	Summary *string               `json:"summary,omitempty"`
	Agenda  *string               `json:"agenda,omitempty"`
}

type CreateNoteRequest struct {
	Text   string            `json:"text" example:"Discuss Q3 roadmap"`
	Source domain.NoteSource `json:"source" enum:"manual,voice,ai"`
}

type UpdateNoteRequest struct {
	Text string `json:"text"`
}

type AnalyzeRequest struct {
	// Notes overrides the stored notes when present.
	Notes []domain.NoteInput `json:"notes,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	Database      string `json:"database" example:"sqlite"`
	SchemaVersion int    `json:"schema_version" example:"1"`
}

func optionalValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// MeetlineError is the envelope every failed request answers with.
type MeetlineError struct {
	Error apiErrorBody `json:"error"`
}

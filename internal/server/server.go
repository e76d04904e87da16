package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"meetline/internal/domain"
	"meetline/internal/engine"
	"meetline/internal/migrate"
	"meetline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   zerolog.Logger
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid meeting transition completed -> in_progress"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"completed\",\"to\":\"in_progress\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Meetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(AccessLog(cfg.Logger, cfg.Engine.Metrics))
	hcfg := huma.DefaultConfig("Meetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerMeetings(group, cfg.Engine)
	registerNotes(group, cfg.Engine)
	registerAnalysis(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		var details map[string]any
		if verr.Field != "" {
			details = map[string]any{"field": verr.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", verr.Error(), details)
	}
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": terr.From,
			"to":   terr.To,
		})
	}
	var aerr *domain.AnalysisError
	if errors.As(err, &aerr) {
		var details map[string]any
		if aerr.Reason != "" {
			details = map[string]any{"reason": aerr.Reason}
		}
		return newAPIError(http.StatusBadGateway, "analysis_unavailable", aerr.Message(), details)
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrEmptyNote):
		return newAPIError(http.StatusUnprocessableEntity, "empty_note", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidSource):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyConverted):
		return newAPIError(http.StatusConflict, "already_converted", err.Error(), nil)
	case errors.Is(err, domain.ErrNoContent):
		return newAPIError(http.StatusUnprocessableEntity, "no_content", err.Error(), nil)
	case errors.Is(err, domain.ErrAnalysisUnavailable):
		return newAPIError(http.StatusBadGateway, "analysis_unavailable", domain.AnalysisHint, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadGateway:
		return "analysis_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

// ensureDefaultErrorResponses points every operation's default response at the
// MeetlineError envelope, registering the schema when no operation has yet.
func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas == nil {
		oas.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	}
	envelope := oas.Components.Schemas.Schema(reflect.TypeOf(MeetlineError{}), true, "MeetlineError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: envelope,
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Meetline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports whether the database answers and which schema version is applied.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		if err := e.DB.Ping(ctx); err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "", "database unreachable", map[string]any{"reason": err.Error()})
		}
		version, err := migrate.Version(ctx, e.DB)
		if err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "", "schema version unreadable", map[string]any{"reason": err.Error()})
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", Database: e.DB.Driver, SchemaVersion: version}}, nil
	})
}

type meetingOutput struct {
	Body domain.Meeting `json:"body"`
}

type meetingPath struct {
	ID string `path:"id"`
}

func registerMeetings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-meetings",
		Method:      http.MethodGet,
		Path:        "/meetings",
		Summary:     "List meetings",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"planned,in_progress,completed,cancelled"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body []domain.MeetingBrief `json:"body"`
	}, error) {
		items, err := e.ListMeetings(ctx, repo.MeetingFilters{Status: input.Status, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MeetingBrief `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-meeting",
		Method:        http.MethodPost,
		Path:          "/meetings",
		Summary:       "Schedule a meeting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateMeetingRequest
	}) (*meetingOutput, error) {
		m, err := e.CreateMeeting(ctx, engine.MeetingCreateOptions{
			Title:           input.Body.Title,
			Date:            input.Body.Date,
			Time:            input.Body.Time,
			DurationMinutes: input.Body.DurationMinutes,
			TypeID:          optionalValue(input.Body.TypeID),
			ProjectID:       optionalValue(input.Body.ProjectID),
			ParticipantIDs:  input.Body.ParticipantIDs,
			Agenda:          input.Body.Agenda,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-meeting",
		Method:      http.MethodGet,
		Path:        "/meetings/{id}",
		Summary:     "Get meeting with notes, participants, related tasks and history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *meetingPath) (*meetingOutput, error) {
		m, err := e.GetMeeting(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-meeting",
		Method:      http.MethodPatch,
		Path:        "/meetings/{id}",
		Summary:     "Update meeting status, title, summary or agenda",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateMeetingRequest
	}) (*meetingOutput, error) {
		m, err := e.UpdateMeeting(ctx, engine.MeetingUpdateOptions{
			ID:      input.ID,
			Status:  input.Body.Status,
			Title:   input.Body.Title,
			Summary: input.Body.Summary,
			Agenda:  input.Body.Agenda,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})
}

type noteOutput struct {
	Body domain.Note `json:"body"`
}

type notePath struct {
	ID     string `path:"id"`
	NoteID int64  `path:"noteId"`
}

func registerNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-note",
		Method:        http.MethodPost,
		Path:          "/meetings/{id}/notes",
		Summary:       "Add note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CreateNoteRequest
	}) (*noteOutput, error) {
		n, err := e.AddNote(ctx, input.ID, input.Body.Text, input.Body.Source)
		if err != nil {
			return nil, handleError(err)
		}
		return &noteOutput{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-note",
		Method:      http.MethodPatch,
		Path:        "/meetings/{id}/notes/{noteId}",
		Summary:     "Edit note text",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		NoteID int64  `path:"noteId"`
		Body   UpdateNoteRequest
	}) (*noteOutput, error) {
		n, err := e.EditNote(ctx, input.ID, input.NoteID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &noteOutput{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-note",
		Method:        http.MethodDelete,
		Path:          "/meetings/{id}/notes/{noteId}",
		Summary:       "Delete note; a task created from it is kept",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *notePath) (*struct{}, error) {
		if err := e.DeleteNote(ctx, input.ID, input.NoteID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-note",
		Method:        http.MethodPost,
		Path:          "/meetings/{id}/notes/{noteId}/convert",
		Summary:       "Convert note into a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *notePath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ConvertNote(ctx, input.ID, input.NoteID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerAnalysis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-meeting",
		Method:      http.MethodPost,
		Path:        "/meetings/{id}/analyze",
		Summary:     "Run the notes through the analysis service",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body *AnalyzeRequest `required:"false"`
	}) (*struct {
		Body domain.SummaryResult `json:"body"`
	}, error) {
		var notes []domain.NoteInput
		if input.Body != nil {
			notes = input.Body.Notes
		}
		res, err := e.Analyze(ctx, input.ID, notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SummaryResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

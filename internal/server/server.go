package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dawin/internal/catalog"
	"dawin/internal/domain"
	"dawin/internal/engine"
	"dawin/internal/repo"
	"dawin/internal/roles"
)

// Config for the HTTP API handler.
type Config struct {
	Engine        engine.Engine
	BasePath      string
	Auth          AuthConfig
	EnableMetrics bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition: done -> open"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"errors\":[\"Missing required field: customerId\"]}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the dispatch API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Dawin Dispatch API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCatalog(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerRoles(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerTenantConfig(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
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
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Error(), map[string]any{"errors": ve.Errors})
	}
	if errors.Is(err, engine.ErrInvalidTransition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"),
		strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
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
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>Dawin Dispatch API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-event-definitions",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/events/definitions",
		Summary:     "List event definitions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant   string `path:"tenant"`
		Category string `query:"category"`
	}) (*struct {
		Body []catalog.EventDefinition `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		cat := cfg.Catalog()
		defs := cat.Definitions()
		if input.Category != "" {
			defs = cat.ByCategory(catalog.Category(input.Category))
		}
		return &struct {
			Body []catalog.EventDefinition `json:"body"`
		}{Body: nonNilSlice(defs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-enabled-event-types",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/events/definitions/enabled",
		Summary:     "List enabled event types",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: nonNilSlice(cfg.Catalog().EnabledTypes())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event-definition",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/events/definitions/{event_type}",
		Summary:     "Get event definition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant    string `path:"tenant"`
		EventType string `path:"event_type"`
	}) (*struct {
		Body catalog.EventDefinition `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		def, ok := cfg.Catalog().Definition(input.EventType)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "event definition not found", map[string]any{"event_type": input.EventType})
		}
		return &struct {
			Body catalog.EventDefinition `json:"body"`
		}{Body: def}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-event",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant}/events",
		Summary:       "Record business event",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string             `path:"tenant"`
		Body   RecordEventRequest `json:"body"`
	}) (*struct {
		Body RecordEventResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.EventType == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "event_type is required", nil)
		}
		res, err := e.RecordEvent(ctx, engine.RecordEventOptions{
			TenantID:   input.Tenant,
			EventType:  input.Body.EventType,
			Payload:    input.Body.Payload,
			OccurredAt: input.Body.OccurredAt,
			ActorID:    principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecordEventResponse `json:"body"`
		}{Body: recordEventResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-event",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant}/events/validate",
		Summary:     "Validate event payload",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string             `path:"tenant"`
		Body   RecordEventRequest `json:"body"`
	}) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		v, err := e.ValidatePayload(ctx, input.Tenant, input.Body.EventType, input.Body.Payload)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: ValidationResponse{Valid: v.Valid, Errors: nonNilSlice(v.Errors)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "simulate-event",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant}/events/simulate",
		Summary:     "Simulate event dispatch without recording",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string             `path:"tenant"`
		Body   RecordEventRequest `json:"body"`
	}) (*struct {
		Body SimulationResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.EventType == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "event_type is required", nil)
		}
		sim, err := e.SimulateEvent(ctx, engine.RecordEventOptions{
			TenantID:   input.Tenant,
			EventType:  input.Body.EventType,
			Payload:    input.Body.Payload,
			OccurredAt: input.Body.OccurredAt,
			ActorID:    principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SimulationResponse `json:"body"`
		}{Body: simulationResponse(sim)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/events",
		Summary:     "List recorded events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant    string `path:"tenant"`
		EventType string `query:"event_type"`
		Category  string `query:"category"`
		ActorID   string `query:"actor_id"`
		Since     string `query:"since"`
		Until     string `query:"until"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedOccurrences `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListOccurrences(ctx, repo.OccurrenceFilters{
			TenantID:        input.Tenant,
			EventType:       input.EventType,
			Category:        input.Category,
			ActorID:         input.ActorID,
			Since:           input.Since,
			Until:           input.Until,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOccurrences{Items: []OccurrenceResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, o := range items {
			resp.Items = append(resp.Items, occurrenceResponse(o))
		}
		return &struct {
			Body paginatedOccurrences `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/events/{id}",
		Summary:     "Get recorded event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct {
		Body OccurrenceResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		o, err := e.Repo.GetOccurrence(ctx, input.Tenant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OccurrenceResponse `json:"body"`
		}{Body: occurrenceResponse(o)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant       string `path:"tenant"`
		OccurrenceID string `query:"occurrence_id"`
		EventType    string `query:"event_type"`
		TaskType     string `query:"task_type"`
		Status       string `query:"status"`
		Priority     string `query:"priority"`
		AssigneeID   string `query:"assignee_id"`
		Unassigned   string `query:"unassigned"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		filter := repo.TaskFilters{
			TenantID:        input.Tenant,
			OccurrenceID:    input.OccurrenceID,
			EventType:       input.EventType,
			TaskType:        input.TaskType,
			Status:          input.Status,
			Priority:        input.Priority,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		}
		switch input.Unassigned {
		case "":
		case "true":
			v := true
			filter.Unassigned = &v
		case "false":
			v := false
			filter.Unassigned = &v
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unassigned must be true or false", nil)
		}
		tasks, err := e.Repo.ListTasks(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			resp.NextCursor = composeCursor(tasks[limit].CreatedAt, tasks[limit].ID)
			tasks = tasks[:limit]
		}
		for _, t := range tasks {
			resp.Items = append(resp.Items, taskResponse(t))
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-task",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/tasks/next",
		Summary:     "Pick the most pressing open task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Tenant            string `path:"tenant"`
		Assignee          string `query:"assignee"`
		IncludeUnassigned bool   `query:"include_unassigned"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		if input.Assignee == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "assignee is required", nil)
		}
		t, err := e.NextTask(ctx, input.Tenant, input.Assignee, input.IncludeUnassigned)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.Tenant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant}/tasks/{id}",
		Summary:     "Update task status or assignee",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string            `path:"tenant"`
		ID     string            `path:"id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Status == nil && input.Body.AssigneeID == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status or assignee_id is required", nil)
		}
		var t domain.Task
		var err error
		// Reassign first so a combined "hand over and start" request works;
		// reassignment is only legal before the task reaches a terminal state.
		if input.Body.AssigneeID != nil {
			t, err = e.ReassignTask(ctx, engine.ReassignOptions{
				TenantID:   input.Tenant,
				TaskID:     input.ID,
				AssigneeID: *input.Body.AssigneeID,
				ActorID:    principal.ActorID,
			})
			if err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Status != nil {
			t, err = e.UpdateTaskStatus(ctx, engine.TaskStatusOptions{
				TenantID: input.Tenant,
				TaskID:   input.ID,
				Status:   *input.Body.Status,
				ActorID:  principal.ActorID,
			})
			if err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/notifications",
		Summary:     "List notifications",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant       string `path:"tenant"`
		OccurrenceID string `query:"occurrence_id"`
		EventType    string `query:"event_type"`
		Template     string `query:"template"`
		Status       string `query:"status"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body paginatedNotifications `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
			TenantID:        input.Tenant,
			OccurrenceID:    input.OccurrenceID,
			EventType:       input.EventType,
			Template:        input.Template,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedNotifications{Items: []NotificationResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, n := range items {
			resp.Items = append(resp.Items, notificationResponse(n))
		}
		return &struct {
			Body paginatedNotifications `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-notification",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/notifications/{id}",
		Summary:     "Get notification",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct {
		Body NotificationResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		n, err := e.Repo.GetNotification(ctx, input.Tenant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NotificationResponse `json:"body"`
		}{Body: notificationResponse(n)}, nil
	})
}

func registerRoles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/roles",
		Summary:     "List role profiles",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
	}) (*struct {
		Body []roles.Profile `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []roles.Profile `json:"body"`
		}{Body: nonNilSlice(cfg.Roles)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-role",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/roles/{role}",
		Summary:     "Get role profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		Role   string `path:"role"`
	}) (*struct {
		Body roles.Profile `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		p, ok := cfg.Roleset().Profile(input.Role)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "role not found", map[string]any{"role": input.Role})
		}
		return &struct {
			Body roles.Profile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-role-capability",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/roles/{role}/capabilities/check",
		Summary:     "Check role capability",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Tenant    string `path:"tenant"`
		Role      string `path:"role"`
		EventType string `query:"event_type"`
		TaskType  string `query:"task_type"`
		Action    string `query:"action" enum:"handle,initiate,execute,approve,delegate"`
	}) (*struct {
		Body CapabilityCheckResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		if input.Action == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "action is required", nil)
		}
		allowed, err := e.CheckCapability(ctx, input.Tenant, engine.CapabilityCheck{
			Role:      input.Role,
			EventType: input.EventType,
			TaskType:  input.TaskType,
			Action:    input.Action,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapabilityCheckResponse `json:"body"`
		}{Body: CapabilityCheckResponse{
			Role:      input.Role,
			Action:    input.Action,
			EventType: input.EventType,
			TaskType:  input.TaskType,
			Allowed:   allowed,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-role-authority",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/roles/{role}/authority",
		Summary:     "Check role approval authority",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		Role   string `path:"role"`
		Type   string `query:"type"`
		Amount int64  `query:"amount"`
	}) (*struct {
		Body AuthorityResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		if input.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		decision, err := e.CheckApproval(ctx, input.Tenant, input.Role, input.Type, input.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthorityResponse `json:"body"`
		}{Body: AuthorityResponse{
			Role:         input.Role,
			Type:         input.Type,
			Amount:       input.Amount,
			HasAuthority: decision.HasAuthority,
			Allowed:      decision.Allowed,
			Limit:        decision.Limit,
		}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/users",
		Summary:     "List directory users",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant     string `path:"tenant"`
		Department string `query:"department"`
		Role       string `query:"role"`
		ActiveOnly bool   `query:"active_only"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		users, err := e.Repo.ListUsers(ctx, repo.UserFilters{
			TenantID:   input.Tenant,
			Department: input.Department,
			Role:       input.Role,
			ActiveOnly: input.ActiveOnly,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-user",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant}/users",
		Summary:     "Create or update directory user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string            `path:"tenant"`
		Body   UpsertUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		active := true
		if input.Body.Active != nil {
			active = *input.Body.Active
		}
		u, err := e.UpsertUser(ctx, domain.User{
			ID:         input.Body.ID,
			TenantID:   input.Tenant,
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Department: input.Body.Department,
			ManagerID:  input.Body.ManagerID,
			Roles:      input.Body.Roles,
			Active:     active,
		}, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/users/{id}",
		Summary:     "Get directory user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, input.Tenant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-user",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant}/users/{id}",
		Summary:     "Remove directory user",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveUser(ctx, input.Tenant, input.ID, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-roles",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant}/users/{id}/roles",
		Summary:     "Replace directory user roles",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
		Body   struct {
			Roles []string `json:"roles"`
		} `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		u, err := e.SetUserRoles(ctx, input.Tenant, input.ID, input.Body.Roles, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerTenantConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-config",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/config",
		Summary:     "Get tenant config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
	}) (*struct {
		Body TenantConfigResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.TenantConfig(ctx, input.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantConfigResponse `json:"body"`
		}{Body: tenantConfigResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-tenant-config",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant}/config",
		Summary:     "Import tenant config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string                    `path:"tenant"`
		Body   ImportTenantConfigRequest `json:"body"`
	}) (*struct {
		Body TenantConfigResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		cfg := importedConfig(input.Tenant, input.Body)
		if err := cfg.Validate(); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		out, err := e.ImportConfig(ctx, input.Tenant, cfg, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantConfigResponse `json:"body"`
		}{Body: tenantConfigResponse(out)}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/audit",
		Summary:     "List audit log entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		After  int64  `query:"after"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var entries []domain.AuditEntry
		var err error
		if input.After > 0 {
			entries, err = e.Repo.AuditAfter(ctx, input.Tenant, input.After, limit)
		} else {
			entries, err = e.Repo.LatestAudit(ctx, repo.AuditFilters{
				TenantID: input.Tenant,
				Type:     input.Type,
				Limit:    limit,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAudit{Items: []AuditEntryResponse{}}
		for _, entry := range entries {
			resp.Items = append(resp.Items, auditEntryResponse(entry))
		}
		if input.After > 0 && len(entries) == limit {
			resp.NextCursor = strconv.FormatInt(entries[len(entries)-1].ID, 10)
		}
		return &struct {
			Body paginatedAudit `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant}/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string              `path:"tenant"`
		Body   CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		actor := input.Body.ActorID
		if actor == "" {
			actor = principal.ActorID
		}
		key, plaintext, err := e.CreateAPIKey(ctx, input.Tenant, input.Body.Name, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{
			ID:        key.ID,
			Key:       plaintext,
			Name:      key.Name,
			ActorID:   key.ActorID,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant}/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Tenant  string `path:"tenant"`
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := requireTenant(ctx, input.Tenant); authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.Tenant, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, key := range keys {
			res = append(res, APIKeyResponse{
				ID:        key.ID,
				Name:      key.Name,
				ActorID:   key.ActorID,
				CreatedAt: key.CreatedAt,
			})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-apikey",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant}/apikeys/{id}",
		Summary:     "Revoke API key",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Tenant string `path:"tenant"`
		ID     string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requireTenant(ctx, input.Tenant)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.Tenant, input.ID, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

package server

import (
	"encoding/json"

	"dawin/internal/catalog"
	"dawin/internal/config"
	"dawin/internal/domain"
	"dawin/internal/engine"
	"dawin/internal/roles"
)

// Request payloads

// RecordEventRequest is the body for record, validate and simulate calls.
type RecordEventRequest struct {
	EventType  string         `json:"event_type" example:"customer.inquiry_received"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
	OccurredAt string         `json:"occurred_at,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Status     *string `json:"status,omitempty" enum:"open,in_progress,done,canceled"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type UpsertUserRequest struct {
	ID         string   `json:"id" example:"u-ana"`
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty" format:"email"`
	Department string   `json:"department,omitempty" example:"sales"`
	ManagerID  *string  `json:"manager_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name    string `json:"name,omitempty" example:"ci"`
	ActorID string `json:"actor_id,omitempty"`
}

type ImportTenantConfigRequest struct {
	Version    int                       `json:"version" example:"1"`
	TenantName string                    `json:"tenant_name,omitempty"`
	Events     []catalog.EventDefinition `json:"events"`
	Roles      []roles.Profile           `json:"roles,omitempty"`
	Webhooks   []config.Webhook          `json:"webhooks,omitempty"`
}

// Response payloads

// OccurrenceResponse is a recorded event with its payload decoded.
type OccurrenceResponse struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type" example:"customer.inquiry_received"`
	Category   string         `json:"category" enum:"customer,financial,hr,production,strategic"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
	OccurredAt string         `json:"occurred_at" format:"date-time"`
	ActorID    string         `json:"actor_id"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID               string  `json:"id"`
	OccurrenceID     string  `json:"occurrence_id"`
	EventType        string  `json:"event_type"`
	TaskType         string  `json:"task_type" example:"respond_inquiry"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Priority         string  `json:"priority" enum:"P0,P1,P2"`
	DueAt            string  `json:"due_at" format:"date-time"`
	AssignKind       string  `json:"assign_kind" enum:"role,department,manager,user,creator"`
	AssignValue      string  `json:"assign_value,omitempty"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	Unassigned       bool    `json:"unassigned,omitempty"`
	UnassignedReason *string `json:"unassigned_reason,omitempty"`
	Status           string  `json:"status" enum:"open,in_progress,done,canceled"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
	CompletedAt      *string `json:"completed_at,omitempty" format:"date-time"`
}

type NotificationResponse struct {
	ID           string             `json:"id"`
	OccurrenceID string             `json:"occurrence_id"`
	EventType    string             `json:"event_type"`
	Template     string             `json:"template" example:"new_inquiry_alert"`
	Channels     []string           `json:"channels"`
	Recipients   []engine.Recipient `json:"recipients"`
	Status       string             `json:"status" enum:"pending,sent,failed"`
	CreatedAt    string             `json:"created_at" format:"date-time"`
	DispatchedAt *string            `json:"dispatched_at,omitempty" format:"date-time"`
}

// RecordEventResponse bundles the occurrence with everything derived from it.
type RecordEventResponse struct {
	Occurrence    OccurrenceResponse     `json:"occurrence"`
	Tasks         []TaskResponse         `json:"tasks"`
	Notifications []NotificationResponse `json:"notifications"`
	Unassigned    []string               `json:"unassigned"`
}

type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type SimulationResponse struct {
	Valid         bool                   `json:"valid"`
	Errors        []string               `json:"errors"`
	Tasks         []TaskResponse         `json:"tasks"`
	Notifications []NotificationResponse `json:"notifications"`
	Unassigned    int                    `json:"unassigned"`
}

type UserResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Department string   `json:"department,omitempty"`
	ManagerID  *string  `json:"manager_id,omitempty"`
	Roles      []string `json:"roles"`
	Active     bool     `json:"active"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

type AuditEntryResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type" example:"occurrence_recorded"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// APIKeyCreatedResponse carries the plaintext key. It is shown exactly once.
type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name,omitempty"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CapabilityCheckResponse struct {
	Role      string `json:"role"`
	Action    string `json:"action" enum:"handle,initiate,execute,approve,delegate"`
	EventType string `json:"event_type,omitempty"`
	TaskType  string `json:"task_type,omitempty"`
	Allowed   bool   `json:"allowed"`
}

// AuthorityResponse reports an approval authority check. A nil limit means
// the role approves without an upper bound.
type AuthorityResponse struct {
	Role         string `json:"role"`
	Type         string `json:"type" example:"financial"`
	Amount       int64  `json:"amount"`
	HasAuthority bool   `json:"has_authority"`
	Allowed      bool   `json:"allowed"`
	Limit        *int64 `json:"limit,omitempty"`
}

// TenantConfigResponse mirrors the stored config with webhook secrets masked.
type TenantConfigResponse struct {
	Version    int                       `json:"version"`
	TenantID   string                    `json:"tenant_id"`
	TenantName string                    `json:"tenant_name,omitempty"`
	Events     []catalog.EventDefinition `json:"events"`
	Roles      []roles.Profile           `json:"roles"`
	Webhooks   []WebhookInfo             `json:"webhooks"`
}

type WebhookInfo struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Events    []string `json:"events,omitempty"`
	HasSecret bool     `json:"has_secret,omitempty"`
}

type paginatedOccurrences struct {
	Items      []OccurrenceResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedNotifications struct {
	Items      []NotificationResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type paginatedAudit struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Mapping helpers

func occurrenceResponse(o domain.Occurrence) OccurrenceResponse {
	return OccurrenceResponse{
		ID:         o.ID,
		EventType:  o.EventType,
		Category:   o.Category,
		Payload:    decodeJSONMap(o.PayloadJSON),
		OccurredAt: o.OccurredAt,
		ActorID:    o.ActorID,
		CreatedAt:  o.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		OccurrenceID:     t.OccurrenceID,
		EventType:        t.EventType,
		TaskType:         t.TaskType,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         t.Priority,
		DueAt:            t.DueAt,
		AssignKind:       t.AssignKind,
		AssignValue:      t.AssignValue,
		AssigneeID:       t.AssigneeID,
		Unassigned:       t.Unassigned,
		UnassignedReason: t.UnassignedReason,
		Status:           t.Status,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:           n.ID,
		OccurrenceID: n.OccurrenceID,
		EventType:    n.EventType,
		Template:     n.Template,
		Channels:     nonNilSlice(n.Channels),
		Recipients:   decodeRecipients(n.RecipientsJSON),
		Status:       n.Status,
		CreatedAt:    n.CreatedAt,
		DispatchedAt: n.DispatchedAt,
	}
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Department: u.Department,
		ManagerID:  u.ManagerID,
		Roles:      nonNilSlice(u.Roles),
		Active:     u.Active,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func auditEntryResponse(entry domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         entry.ID,
		TS:         entry.TS,
		Type:       entry.Type,
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Payload:    decodeJSONMap(entry.Payload),
	}
}

func recordEventResponse(res engine.RecordEventResult) RecordEventResponse {
	out := RecordEventResponse{
		Occurrence:    occurrenceResponse(res.Occurrence),
		Tasks:         []TaskResponse{},
		Notifications: []NotificationResponse{},
		Unassigned:    nonNilSlice(res.Unassigned),
	}
	for _, t := range res.Tasks {
		out.Tasks = append(out.Tasks, taskResponse(t))
	}
	for _, n := range res.Notifications {
		out.Notifications = append(out.Notifications, notificationResponse(n))
	}
	return out
}

func simulationResponse(sim engine.SimulationResult) SimulationResponse {
	out := SimulationResponse{
		Valid:         sim.Valid,
		Errors:        nonNilSlice(sim.Errors),
		Tasks:         []TaskResponse{},
		Notifications: []NotificationResponse{},
		Unassigned:    sim.Unassigned,
	}
	for _, t := range sim.Tasks {
		out.Tasks = append(out.Tasks, taskResponse(t))
	}
	for _, n := range sim.Notifications {
		out.Notifications = append(out.Notifications, notificationResponse(n))
	}
	return out
}

func tenantConfigResponse(cfg *config.Config) TenantConfigResponse {
	resp := TenantConfigResponse{
		Version:    cfg.Version,
		TenantID:   cfg.Tenant.ID,
		TenantName: cfg.Tenant.Name,
		Events:     nonNilSlice(cfg.Events),
		Roles:      nonNilSlice(cfg.Roles),
		Webhooks:   []WebhookInfo{},
	}
	for _, w := range cfg.Webhooks {
		resp.Webhooks = append(resp.Webhooks, WebhookInfo{
			Name:      w.Name,
			URL:       w.URL,
			Events:    w.Events,
			HasSecret: w.Secret != "",
		})
	}
	return resp
}

func importedConfig(tenantID string, req ImportTenantConfigRequest) *config.Config {
	cfg := &config.Config{
		Version:  req.Version,
		Events:   req.Events,
		Roles:    req.Roles,
		Webhooks: req.Webhooks,
	}
	cfg.Tenant.ID = tenantID
	cfg.Tenant.Name = req.TenantName
	return cfg
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func decodeRecipients(raw string) []engine.Recipient {
	out := []engine.Recipient{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

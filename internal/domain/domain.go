package domain

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status" enum:"active,suspended"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Occurrence struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	EventType   string `json:"event_type"`
	Category    string `json:"category" enum:"customer,financial,hr,production,strategic"`
	PayloadJSON string `json:"payload_json"`
	OccurredAt  string `json:"occurred_at" format:"date-time"`
	ActorID     string `json:"actor_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	OccurrenceID     string  `json:"occurrence_id"`
	EventType        string  `json:"event_type"`
	TaskType         string  `json:"task_type"`
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

type Notification struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenant_id"`
	OccurrenceID   string   `json:"occurrence_id"`
	EventType      string   `json:"event_type"`
	Template       string   `json:"template"`
	Channels       []string `json:"channels"`
	RecipientsJSON string   `json:"recipients_json"`
	Status         string   `json:"status" enum:"pending,sent,failed"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	DispatchedAt   *string  `json:"dispatched_at,omitempty" format:"date-time"`
}

type User struct {
	ID         string   `json:"id"`
	TenantID   string   `json:"tenant_id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Department string   `json:"department,omitempty"`
	ManagerID  *string  `json:"manager_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Active     bool     `json:"active"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

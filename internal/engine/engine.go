package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"dawin/internal/audit"
	"dawin/internal/catalog"
	"dawin/internal/config"
	"dawin/internal/dispatch"
	"dawin/internal/domain"
	"dawin/internal/metrics"
	"dawin/internal/notify"
	"dawin/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Audit    audit.Writer
	Notifier *notify.Publisher
	Metrics  *metrics.Metrics
	Config   *config.Config
	Now      func() time.Time
}

// New builds an engine over an open database. cfg, when non-nil, seeds the
// stored config of tenants created through InitTenant; nil falls back to the
// built-in default catalog.
func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ErrInvalidTransition marks task lifecycle violations. Wrapped errors carry
// the offending states.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError reports a rejected payload. Nothing is persisted when it is
// returned.
type ValidationError struct {
	EventType string
	Errors    []string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("event %s rejected: %s", v.EventType, strings.Join(v.Errors, "; "))
}

// InitTenant creates a tenant with its seed config, migrations already run.
func (e Engine) InitTenant(ctx context.Context, tenantID, name, actorID string) (domain.Tenant, error) {
	if tenantID == "" {
		return domain.Tenant{}, errors.New("tenant id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()

	t := domain.Tenant{
		ID:        tenantID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertTenant(ctx, tx, t); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	seed := e.Config
	if seed == nil {
		seed = config.Default(tenantID)
	}
	cfg := *seed
	cfg.Tenant.ID = tenantID
	if name != "" {
		cfg.Tenant.Name = name
	}
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, tenantID, &cfg); err != nil {
		return domain.Tenant{}, fmt.Errorf("seed tenant config: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, audit.TenantCreated, tenantID, "tenant", tenantID, actorID, audit.Payload{"status": t.Status}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// RecordEventOptions are parameters for recording one business event.
type RecordEventOptions struct {
	TenantID   string
	EventType  string
	Payload    map[string]any
	OccurredAt string // RFC3339; empty means now
	ActorID    string
}

// RecordEventResult is what one recorded occurrence produced. Unassigned lists
// ids of tasks persisted without a resolvable assignee; they are kept and
// surfaced, never dropped.
type RecordEventResult struct {
	Occurrence    domain.Occurrence
	Tasks         []domain.Task
	Notifications []domain.Notification
	Unassigned    []string
}

// RecordEvent validates the payload, derives tasks and notifications from the
// tenant's catalog and persists everything in one transaction. Derived
// notifications are handed to the NATS publisher after commit; publish
// failures mark the notification failed but never undo the occurrence.
func (e Engine) RecordEvent(ctx context.Context, opts RecordEventOptions) (RecordEventResult, error) {
	started := e.now()
	var res RecordEventResult
	if opts.TenantID == "" {
		return res, errors.New("tenant is required")
	}
	if opts.EventType == "" {
		return res, errors.New("event type is required")
	}
	if opts.ActorID == "" {
		return res, errors.New("actor is required")
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return res, err
	}
	cfg, err := e.Repo.GetTenantConfig(ctx, opts.TenantID)
	if err != nil {
		return res, err
	}
	cat := cfg.Catalog()
	if v := cat.ValidatePayload(opts.EventType, opts.Payload); !v.Valid {
		e.Metrics.IncValidationFailure(opts.TenantID, opts.EventType)
		return res, &ValidationError{EventType: opts.EventType, Errors: v.Errors}
	}
	def, _ := cat.Definition(opts.EventType)

	occurredAt := e.now().UTC()
	if opts.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, opts.OccurredAt)
		if err != nil {
			return res, fmt.Errorf("occurred-at: %w", err)
		}
		occurredAt = t.UTC()
	}
	payloadJSON := []byte("{}")
	if opts.Payload != nil {
		payloadJSON, err = json.Marshal(opts.Payload)
		if err != nil {
			return res, fmt.Errorf("payload: %w", err)
		}
	}

	staff := newStaffing(ctx, e.Repo, opts.TenantID)
	derived := dispatch.New(cat, staff).Derive(dispatch.Occurrence{
		EventType:  opts.EventType,
		Payload:    opts.Payload,
		OccurredAt: occurredAt,
		ActorID:    opts.ActorID,
	})

	now := e.now().UTC().Format(time.RFC3339)
	occ := domain.Occurrence{
		ID:          uuid.New().String(),
		TenantID:    opts.TenantID,
		EventType:   opts.EventType,
		Category:    string(def.Category),
		PayloadJSON: string(payloadJSON),
		OccurredAt:  occurredAt.Format(time.RFC3339),
		ActorID:     opts.ActorID,
		CreatedAt:   now,
	}

	tasks := make([]domain.Task, 0, len(derived.Tasks))
	for _, dt := range derived.Tasks {
		tasks = append(tasks, e.buildTask(staff, occ, dt, now))
	}
	type outbound struct {
		n          domain.Notification
		recipients []string
	}
	notifications := make([]outbound, 0, len(derived.Notifications))
	for _, dn := range derived.Notifications {
		n, recipients, err := e.buildNotification(staff, occ, dn, now)
		if err != nil {
			return res, err
		}
		notifications = append(notifications, outbound{n: n, recipients: recipients})
	}
	if staff.err != nil {
		return res, fmt.Errorf("resolve assignees: %w", staff.err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOccurrence(ctx, tx, occ); err != nil {
		return res, fmt.Errorf("insert occurrence: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, audit.OccurrenceRecorded, occ.TenantID, "occurrence", occ.ID, opts.ActorID, audit.Payload{
		"event_type": occ.EventType,
		"category":   occ.Category,
	}); err != nil {
		return res, err
	}
	for _, t := range tasks {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return res, fmt.Errorf("insert task: %w", err)
		}
		payload := audit.Payload{"task_type": t.TaskType, "priority": t.Priority}
		if t.AssigneeID != nil {
			payload["assignee"] = *t.AssigneeID
		} else {
			payload["unassigned"] = true
		}
		if err := e.Audit.Append(ctx, tx, audit.TaskCreated, t.TenantID, "task", t.ID, opts.ActorID, payload); err != nil {
			return res, err
		}
		if t.Unassigned {
			res.Unassigned = append(res.Unassigned, t.ID)
		}
	}
	for _, o := range notifications {
		if err := e.Repo.InsertNotification(ctx, tx, o.n); err != nil {
			return res, fmt.Errorf("insert notification: %w", err)
		}
		if err := e.Audit.Append(ctx, tx, audit.NotificationRecorded, o.n.TenantID, "notification", o.n.ID, opts.ActorID, audit.Payload{
			"template":   o.n.Template,
			"recipients": len(o.recipients),
		}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	res.Occurrence = occ
	res.Tasks = tasks
	for i := range notifications {
		e.finalizeDispatch(ctx, occ, &notifications[i].n, notifications[i].recipients)
		res.Notifications = append(res.Notifications, notifications[i].n)
	}

	e.Metrics.IncOccurrence(occ.TenantID, occ.Category)
	e.Metrics.AddDerived(occ.TenantID, occ.EventType, len(res.Tasks), len(res.Notifications))
	e.Metrics.AddUnassigned(occ.TenantID, occ.EventType, len(res.Unassigned))
	e.Metrics.ObserveRecordEvent(e.now().Sub(started))
	return res, nil
}

// SimulationResult is a dry-run preview. Tasks and notifications carry no ids
// since nothing was persisted.
type SimulationResult struct {
	Valid         bool
	Errors        []string
	Tasks         []domain.Task
	Notifications []domain.Notification
	Unassigned    int
}

// SimulateEvent runs validation and derivation against live staffing without
// writing anything. An invalid payload is a normal outcome here, reported in
// the result instead of an error.
func (e Engine) SimulateEvent(ctx context.Context, opts RecordEventOptions) (SimulationResult, error) {
	var res SimulationResult
	if opts.TenantID == "" {
		return res, errors.New("tenant is required")
	}
	if opts.EventType == "" {
		return res, errors.New("event type is required")
	}
	cfg, err := e.Repo.GetTenantConfig(ctx, opts.TenantID)
	if err != nil {
		return res, err
	}
	cat := cfg.Catalog()
	if v := cat.ValidatePayload(opts.EventType, opts.Payload); !v.Valid {
		res.Errors = v.Errors
		return res, nil
	}
	res.Valid = true
	def, _ := cat.Definition(opts.EventType)

	occurredAt := e.now().UTC()
	if opts.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, opts.OccurredAt)
		if err != nil {
			return res, fmt.Errorf("occurred-at: %w", err)
		}
		occurredAt = t.UTC()
	}
	staff := newStaffing(ctx, e.Repo, opts.TenantID)
	derived := dispatch.New(cat, staff).Derive(dispatch.Occurrence{
		EventType:  opts.EventType,
		Payload:    opts.Payload,
		OccurredAt: occurredAt,
		ActorID:    opts.ActorID,
	})
	now := e.now().UTC().Format(time.RFC3339)
	occ := domain.Occurrence{
		TenantID:   opts.TenantID,
		EventType:  opts.EventType,
		Category:   string(def.Category),
		OccurredAt: occurredAt.Format(time.RFC3339),
		ActorID:    opts.ActorID,
	}
	for _, dt := range derived.Tasks {
		t := e.buildTask(staff, occ, dt, now)
		t.ID = ""
		if t.Unassigned {
			res.Unassigned++
		}
		res.Tasks = append(res.Tasks, t)
	}
	for _, dn := range derived.Notifications {
		n, _, err := e.buildNotification(staff, occ, dn, now)
		if err != nil {
			return res, err
		}
		n.ID = ""
		res.Notifications = append(res.Notifications, n)
	}
	if staff.err != nil {
		return res, fmt.Errorf("resolve assignees: %w", staff.err)
	}
	return res, nil
}

// ValidatePayload checks a payload against the tenant's catalog without
// deriving or writing anything.
func (e Engine) ValidatePayload(ctx context.Context, tenantID, eventType string, payload map[string]any) (catalog.ValidationResult, error) {
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return catalog.ValidationResult{}, err
	}
	return cfg.Catalog().ValidatePayload(eventType, payload), nil
}

func (e Engine) buildTask(staff *staffing, occ domain.Occurrence, dt dispatch.Task, now string) domain.Task {
	t := domain.Task{
		ID:           uuid.New().String(),
		TenantID:     occ.TenantID,
		OccurrenceID: occ.ID,
		EventType:    occ.EventType,
		TaskType:     dt.TaskType,
		Title:        dt.Title,
		Description:  dt.Description,
		Priority:     string(dt.Priority),
		DueAt:        dt.DueAt.UTC().Format(time.RFC3339),
		AssignKind:   string(dt.Assign.Kind),
		AssignValue:  dt.Assign.Value,
		Status:       "open",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	assignee, reason := resolveAssignee(staff, dt.Assign)
	if assignee != "" {
		t.AssigneeID = &assignee
	} else {
		t.Unassigned = true
		if reason != "" {
			t.UnassignedReason = &reason
		}
	}
	return t
}

// Recipient is one resolved notification target as stored in recipients_json.
// Users holds the concrete ids the target expanded to at dispatch time.
type Recipient struct {
	Kind   string   `json:"kind"`
	Value  string   `json:"value,omitempty"`
	Users  []string `json:"users,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

func (e Engine) buildNotification(staff *staffing, occ domain.Occurrence, dn dispatch.Notification, now string) (domain.Notification, []string, error) {
	recs := make([]Recipient, 0, len(dn.Recipients))
	var flat []string
	seen := map[string]bool{}
	for _, a := range dn.Recipients {
		rec := Recipient{Kind: string(a.Kind), Value: a.Value}
		if a.Unassignable {
			rec.Reason = a.Reason
		} else {
			rec.Reason = resolveRecipients(staff, a, &rec)
		}
		for _, id := range rec.Users {
			if !seen[id] {
				seen[id] = true
				flat = append(flat, id)
			}
		}
		recs = append(recs, rec)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return domain.Notification{}, nil, fmt.Errorf("recipients: %w", err)
	}
	channels := make([]string, 0, len(dn.Channels))
	for _, ch := range dn.Channels {
		channels = append(channels, string(ch))
	}
	n := domain.Notification{
		ID:             uuid.New().String(),
		TenantID:       occ.TenantID,
		OccurrenceID:   occ.ID,
		EventType:      occ.EventType,
		Template:       dn.Template,
		Channels:       channels,
		RecipientsJSON: string(data),
		Status:         "pending",
		CreatedAt:      now,
	}
	return n, flat, nil
}

// finalizeDispatch hands one committed notification to the publisher and
// records the outcome. Best effort: the occurrence is already committed, so
// bookkeeping failures here are not surfaced to the caller.
func (e Engine) finalizeDispatch(ctx context.Context, occ domain.Occurrence, n *domain.Notification, recipients []string) {
	status := "sent"
	published := false
	if e.Notifier.Enabled() {
		published = e.Notifier.Publish(*n, recipients, occ.OccurredAt)
		if !published {
			status = "failed"
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	if err := e.Repo.MarkNotificationDispatched(ctx, tx, n.ID, status, now); err != nil {
		return
	}
	if status == "sent" {
		if err := e.Audit.Append(ctx, tx, audit.NotificationDispatched, n.TenantID, "notification", n.ID, occ.ActorID, audit.Payload{
			"template":  n.Template,
			"published": published,
		}); err != nil {
			return
		}
	}
	if err := tx.Commit(); err != nil {
		return
	}
	n.Status = status
	n.DispatchedAt = &now
}

// TaskStatusOptions are parameters for a task lifecycle transition.
type TaskStatusOptions struct {
	TenantID string
	TaskID   string
	Status   string
	ActorID  string
}

// UpdateTaskStatus applies one lifecycle transition. Allowed: open ->
// in_progress|canceled, in_progress -> done|canceled|open. done and canceled
// are terminal.
func (e Engine) UpdateTaskStatus(ctx context.Context, opts TaskStatusOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.TenantID, opts.TaskID)
	if err != nil {
		return t, err
	}
	if err := ensureTaskTransition(t.Status, opts.Status); err != nil {
		return t, err
	}
	from := t.Status
	now := e.now().UTC().Format(time.RFC3339)
	t.Status = opts.Status
	t.UpdatedAt = now
	if opts.Status == "done" {
		t.CompletedAt = &now
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Audit.Append(ctx, tx, audit.TaskStatusChanged, t.TenantID, "task", t.ID, opts.ActorID, audit.Payload{
		"from": from,
		"to":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func ensureTaskTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "open":
		if newStatus == "in_progress" || newStatus == "canceled" {
			return nil
		}
	case "in_progress":
		if newStatus == "done" || newStatus == "canceled" || newStatus == "open" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

// ReassignOptions are parameters for moving a task to a new assignee.
type ReassignOptions struct {
	TenantID   string
	TaskID     string
	AssigneeID string
	ActorID    string
}

// ReassignTask hands an open or in-progress task to a named user and clears
// any unassigned flag.
func (e Engine) ReassignTask(ctx context.Context, opts ReassignOptions) (domain.Task, error) {
	if opts.AssigneeID == "" {
		return domain.Task{}, errors.New("assignee is required")
	}
	t, err := e.Repo.GetTask(ctx, opts.TenantID, opts.TaskID)
	if err != nil {
		return t, err
	}
	if t.Status != "open" && t.Status != "in_progress" {
		return t, fmt.Errorf("%w: cannot reassign a %s task", ErrInvalidTransition, t.Status)
	}
	previous := ""
	if t.AssigneeID != nil {
		previous = *t.AssigneeID
	}
	t.AssigneeID = &opts.AssigneeID
	t.Unassigned = false
	t.UnassignedReason = nil
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Audit.Append(ctx, tx, audit.TaskReassigned, t.TenantID, "task", t.ID, opts.ActorID, audit.Payload{
		"from": previous,
		"to":   opts.AssigneeID,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// NextTask picks the most pressing open task for an assignee.
func (e Engine) NextTask(ctx context.Context, tenantID, assigneeID string, includeUnassigned bool) (domain.Task, error) {
	return e.Repo.NextTask(ctx, repo.NextTaskFilters{
		TenantID:          tenantID,
		AssigneeID:        assigneeID,
		IncludeUnassigned: includeUnassigned,
	})
}

// UpsertUser creates or updates a directory entry. A non-nil Roles slice
// replaces the user's role set; nil leaves roles untouched.
func (e Engine) UpsertUser(ctx context.Context, u domain.User, actorID string) (domain.User, error) {
	if u.ID == "" {
		return domain.User{}, errors.New("user id is required")
	}
	if u.TenantID == "" {
		return domain.User{}, errors.New("tenant is required")
	}
	if _, err := e.Repo.GetTenant(ctx, u.TenantID); err != nil {
		return domain.User{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertUser(ctx, tx, u, now); err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	if u.Roles != nil {
		if err := e.Repo.SetUserRoles(ctx, tx, u.TenantID, u.ID, u.Roles); err != nil {
			return domain.User{}, fmt.Errorf("set roles: %w", err)
		}
	}
	payload := audit.Payload{"name": u.Name}
	if u.Roles != nil {
		payload["roles"] = u.Roles
	}
	if err := e.Audit.Append(ctx, tx, audit.UserUpserted, u.TenantID, "user", u.ID, actorID, payload); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, u.TenantID, u.ID)
}

// SetUserRoles replaces a user's role set.
func (e Engine) SetUserRoles(ctx context.Context, tenantID, userID string, roleIDs []string, actorID string) (domain.User, error) {
	if _, err := e.Repo.GetUser(ctx, tenantID, userID); err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetUserRoles(ctx, tx, tenantID, userID, roleIDs); err != nil {
		return domain.User{}, err
	}
	if err := e.Audit.Append(ctx, tx, audit.UserUpserted, tenantID, "user", userID, actorID, audit.Payload{"roles": roleIDs}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, tenantID, userID)
}

// RemoveUser deletes a directory entry and its roles.
func (e Engine) RemoveUser(ctx context.Context, tenantID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, tenantID, userID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.UserRemoved, tenantID, "user", userID, actorID, audit.Payload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// ImportConfig validates and stores a tenant's config document.
func (e Engine) ImportConfig(ctx context.Context, tenantID string, cfg *config.Config, actorID string) (*config.Config, error) {
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, tenantID, cfg); err != nil {
		return nil, err
	}
	if err := e.Audit.Append(ctx, tx, audit.ConfigUpdated, tenantID, "config", tenantID, actorID, audit.Payload{
		"events": len(cfg.Events),
		"roles":  len(cfg.Roles),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e.Repo.GetTenantConfig(ctx, tenantID)
}

// TenantConfig returns the stored config document.
func (e Engine) TenantConfig(ctx context.Context, tenantID string) (*config.Config, error) {
	return e.Repo.GetTenantConfig(ctx, tenantID)
}

// ExportConfig renders the stored config back to YAML.
func (e Engine) ExportConfig(ctx context.Context, tenantID string) ([]byte, error) {
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(cfg)
}

// CapabilityCheck names one capability question about a role.
type CapabilityCheck struct {
	Role      string
	EventType string
	TaskType  string
	Action    string // handle, initiate, execute, approve, delegate
}

// CheckCapability answers whether a role may take the named action.
func (e Engine) CheckCapability(ctx context.Context, tenantID string, chk CapabilityCheck) (bool, error) {
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return false, err
	}
	p, ok := cfg.Roleset().Profile(chk.Role)
	if !ok {
		return false, fmt.Errorf("role %q: %w", chk.Role, repo.ErrNotFound)
	}
	switch chk.Action {
	case "handle":
		return p.CanHandleEvent(chk.EventType), nil
	case "initiate":
		return p.CanInitiateEvent(chk.EventType), nil
	case "execute":
		return p.CanExecuteTask(chk.EventType, chk.TaskType), nil
	case "approve":
		return p.CanApproveTask(chk.EventType, chk.TaskType), nil
	case "delegate":
		return p.CanDelegateTask(chk.EventType, chk.TaskType), nil
	default:
		return false, fmt.Errorf("unknown capability action %q", chk.Action)
	}
}

// ApprovalDecision reports whether a role may approve an amount under an
// authority type. A nil Limit with HasAuthority set means unlimited.
type ApprovalDecision struct {
	Allowed      bool   `json:"allowed"`
	HasAuthority bool   `json:"has_authority"`
	Limit        *int64 `json:"limit,omitempty"`
}

// CheckApproval answers whether a role may approve the given amount.
func (e Engine) CheckApproval(ctx context.Context, tenantID, role, authorityType string, amount int64) (ApprovalDecision, error) {
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return ApprovalDecision{}, err
	}
	p, ok := cfg.Roleset().Profile(role)
	if !ok {
		return ApprovalDecision{}, fmt.Errorf("role %q: %w", role, repo.ErrNotFound)
	}
	limit, _ := p.ApprovalLimit(authorityType)
	return ApprovalDecision{
		Allowed:      p.CanApproveAmount(authorityType, amount),
		HasAuthority: p.HasAuthority(authorityType),
		Limit:        limit,
	}, nil
}

// PurgeResult counts what one retention sweep moved.
type PurgeResult struct {
	Archived int64 `json:"archived"`
	Deleted  int64 `json:"deleted"`
}

// PurgeExpired applies every enabled definition's retention policy: archive
// when the policy says so, then delete occurrences older than the horizon.
// Derived tasks and notifications are kept; only the occurrence log shrinks.
func (e Engine) PurgeExpired(ctx context.Context, tenantID, actorID string) (PurgeResult, error) {
	var res PurgeResult
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return res, err
	}
	nowT := e.now().UTC()
	now := nowT.Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	for _, def := range cfg.Catalog().Definitions() {
		if !def.IsEnabled() || def.Retention.Days <= 0 {
			continue
		}
		cutoff := nowT.AddDate(0, 0, -def.Retention.Days).Format(time.RFC3339)
		if def.Retention.Archive {
			n, err := e.Repo.ArchiveOccurrencesBefore(ctx, tx, tenantID, def.EventType, cutoff, now)
			if err != nil {
				return res, fmt.Errorf("archive %s: %w", def.EventType, err)
			}
			res.Archived += n
		}
		n, err := e.Repo.DeleteOccurrencesBefore(ctx, tx, tenantID, def.EventType, cutoff)
		if err != nil {
			return res, fmt.Errorf("purge %s: %w", def.EventType, err)
		}
		res.Deleted += n
	}
	if res.Archived > 0 || res.Deleted > 0 {
		if err := e.Audit.Append(ctx, tx, audit.RetentionSwept, tenantID, "tenant", tenantID, actorID, audit.Payload{
			"archived": res.Archived,
			"deleted":  res.Deleted,
		}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// CreateAPIKey mints a key for an actor. The plaintext is returned exactly
// once; only its SHA-256 hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, tenantID, name, actorID string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor id is required")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	plaintext := "dwk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Audit.Append(ctx, tx, audit.APIKeyCreated, tenantID, "api_key", key.ID, actorID, audit.Payload{
		"name": name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

// RevokeAPIKey deletes a key by id within the tenant.
func (e Engine) RevokeAPIKey(ctx context.Context, tenantID, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, tenantID, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.APIKeyRevoked, tenantID, "api_key", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// staffing answers holder lookups during one derivation, memoizing per
// target. The HolderDirectory interface cannot carry errors, so the first
// lookup failure is remembered and checked after derivation.
type staffing struct {
	ctx      context.Context
	repo     repo.Repo
	tenantID string
	cache    map[string][]string
	err      error
}

func newStaffing(ctx context.Context, r repo.Repo, tenantID string) *staffing {
	return &staffing{ctx: ctx, repo: r, tenantID: tenantID, cache: map[string][]string{}}
}

func (s *staffing) holders(kind catalog.TargetKind, value string) []string {
	key := string(kind) + "\x00" + value
	if ids, ok := s.cache[key]; ok {
		return ids
	}
	var ids []string
	var err error
	switch kind {
	case catalog.TargetRole:
		ids, err = s.repo.UsersWithRole(s.ctx, s.tenantID, value)
	case catalog.TargetDepartment:
		ids, err = s.repo.UsersInDepartment(s.ctx, s.tenantID, value)
	case catalog.TargetManager:
		var mgr string
		mgr, err = s.repo.ManagerOf(s.ctx, s.tenantID, value)
		if errors.Is(err, repo.ErrNotFound) {
			err = nil
		}
		if mgr != "" {
			ids = []string{mgr}
		}
	}
	if err != nil && s.err == nil {
		s.err = err
	}
	s.cache[key] = ids
	return ids
}

func (s *staffing) HasHolders(kind catalog.TargetKind, value string) bool {
	return len(s.holders(kind, value)) > 0
}

// resolveAssignee maps one assignment to a concrete user id where possible.
// An empty id comes back with the reason the target stayed unstaffed.
func resolveAssignee(s *staffing, a dispatch.Assignment) (string, string) {
	if a.Unassignable {
		return "", a.Reason
	}
	switch a.Kind {
	case catalog.TargetRole, catalog.TargetDepartment:
		if ids := s.holders(a.Kind, a.Value); len(ids) > 0 {
			return ids[0], ""
		}
		return "", fmt.Sprintf("no holder for %s %q", a.Kind, a.Value)
	case catalog.TargetManager:
		if ids := s.holders(a.Kind, a.Value); len(ids) > 0 {
			return ids[0], ""
		}
		return "", fmt.Sprintf("no manager recorded for user %q", a.Value)
	case catalog.TargetUser, catalog.TargetCreator:
		return a.Value, ""
	}
	return "", ""
}

// resolveRecipients expands one notification target into rec.Users and
// returns the reason when nobody could be found.
func resolveRecipients(s *staffing, a dispatch.Assignment, rec *Recipient) string {
	switch a.Kind {
	case catalog.TargetRole, catalog.TargetDepartment:
		rec.Users = s.holders(a.Kind, a.Value)
		if len(rec.Users) == 0 {
			return fmt.Sprintf("no holder for %s %q", a.Kind, a.Value)
		}
	case catalog.TargetManager:
		rec.Users = s.holders(a.Kind, a.Value)
		if len(rec.Users) == 0 {
			return fmt.Sprintf("no manager recorded for user %q", a.Value)
		}
	case catalog.TargetUser, catalog.TargetCreator:
		if a.Value != "" {
			rec.Users = []string{a.Value}
		}
	}
	return ""
}

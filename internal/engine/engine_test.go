package engine_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"dawin/internal/audit"
	"dawin/internal/catalog"
	"dawin/internal/config"
	"dawin/internal/db"
	"dawin/internal/domain"
	"dawin/internal/engine"
	"dawin/internal/migrate"
	"dawin/internal/repo"
)

const testTenant = "acme"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, nil)
	eng.Now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	eng.Audit.Now = eng.Now
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, testTenant, "Acme Manufacturing", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func addUser(t *testing.T, env testEnv, id, department string, roleIDs ...string) {
	t.Helper()
	u := domain.User{ID: id, TenantID: testTenant, Name: id, Department: department, Active: true}
	if len(roleIDs) > 0 {
		u.Roles = roleIDs
	}
	if _, err := env.Engine.UpsertUser(env.Ctx, u, "tester"); err != nil {
		t.Fatalf("upsert user %s: %v", id, err)
	}
}

func inquiryPayload() map[string]any {
	return map[string]any{
		"customerName":  "Globex",
		"customerEmail": "ops@globex.example",
		"inquiryType":   "pricing",
		"subject":       "Bulk pricing",
	}
}

func auditCount(t *testing.T, env testEnv, entryType string) int {
	t.Helper()
	entries, err := env.Engine.Repo.LatestAudit(env.Ctx, repo.AuditFilters{TenantID: testTenant, Type: entryType})
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	return len(entries)
}

func TestInitTenantSeedsDefaultConfig(t *testing.T) {
	env := newTestEnv(t)
	ten, err := env.Engine.Repo.GetTenant(env.Ctx, testTenant)
	if err != nil || ten.Status != "active" || ten.Name != "Acme Manufacturing" {
		t.Fatalf("tenant row: %+v err=%v", ten, err)
	}
	cfg, err := env.Engine.TenantConfig(env.Ctx, testTenant)
	if err != nil {
		t.Fatalf("tenant config: %v", err)
	}
	if cfg.Tenant.ID != testTenant || len(cfg.Events) != 12 {
		t.Fatalf("seeded config: tenant=%q events=%d", cfg.Tenant.ID, len(cfg.Events))
	}
	if got := auditCount(t, env, audit.TenantCreated); got != 1 {
		t.Fatalf("tenant_created entries: %d", got)
	}
	if _, err := env.Engine.InitTenant(env.Ctx, testTenant, "", "tester"); err == nil {
		t.Fatalf("duplicate tenant id should fail")
	}
	if _, err := env.Engine.InitTenant(env.Ctx, "", "", "tester"); err == nil {
		t.Fatalf("empty tenant id should fail")
	}
}

func TestRecordEventDerivesAndPersists(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "u-rep", "sales", "sales_rep")
	addUser(t, env, "u-boss", "sales", "sales_manager")

	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID:  testTenant,
		EventType: "customer.inquiry_received",
		Payload:   inquiryPayload(),
		ActorID:   "u-boss",
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	if res.Occurrence.Category != "customer" || res.Occurrence.OccurredAt != "2026-03-02T09:00:00Z" {
		t.Fatalf("occurrence: %+v", res.Occurrence)
	}
	if len(res.Tasks) != 2 || len(res.Unassigned) != 0 {
		t.Fatalf("expected 2 assigned tasks, got %d tasks %d unassigned", len(res.Tasks), len(res.Unassigned))
	}

	respond := res.Tasks[0]
	if respond.TaskType != "respond_inquiry" || respond.Priority != "P1" || respond.Status != "open" {
		t.Fatalf("respond task: %+v", respond)
	}
	if respond.Title != "Respond to inquiry from Globex" {
		t.Fatalf("title: %q", respond.Title)
	}
	if respond.DueAt != "2026-03-03T09:00:00Z" {
		t.Fatalf("due at: %q", respond.DueAt)
	}
	if respond.AssigneeID == nil || *respond.AssigneeID != "u-rep" {
		t.Fatalf("assignee: %v", respond.AssigneeID)
	}
	if res.Tasks[1].TaskType != "create_lead" || res.Tasks[1].DueAt != "2026-03-04T09:00:00Z" {
		t.Fatalf("lead task: %+v", res.Tasks[1])
	}

	if len(res.Notifications) != 1 {
		t.Fatalf("notifications: %+v", res.Notifications)
	}
	n := res.Notifications[0]
	if n.Template != "new_inquiry" || n.Status != "sent" || n.DispatchedAt == nil {
		t.Fatalf("notification: %+v", n)
	}
	if !strings.Contains(n.RecipientsJSON, "u-boss") {
		t.Fatalf("recipients should resolve the sales manager: %s", n.RecipientsJSON)
	}

	// everything landed in the store
	if _, err := env.Engine.Repo.GetOccurrence(env.Ctx, testTenant, res.Occurrence.ID); err != nil {
		t.Fatalf("occurrence not persisted: %v", err)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{TenantID: testTenant, OccurrenceID: res.Occurrence.ID})
	if err != nil || len(tasks) != 2 {
		t.Fatalf("persisted tasks: %d err=%v", len(tasks), err)
	}
	if got := auditCount(t, env, audit.OccurrenceRecorded); got != 1 {
		t.Fatalf("occurrence_recorded entries: %d", got)
	}
	if got := auditCount(t, env, audit.TaskCreated); got != 2 {
		t.Fatalf("task_created entries: %d", got)
	}
	if got := auditCount(t, env, audit.NotificationDispatched); got != 1 {
		t.Fatalf("notification_dispatched entries: %d", got)
	}
}

func TestRecordEventRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID:  testTenant,
		EventType: "customer.inquiry_received",
		Payload:   map[string]any{"customerName": "Globex", "subject": nil},
		ActorID:   "tester",
	})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{
		"Missing required field: customerEmail",
		"Missing required field: inquiryType",
		"Missing required field: subject",
	}
	if !reflect.DeepEqual(verr.Errors, want) {
		t.Fatalf("errors: %v", verr.Errors)
	}

	_, err = env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.nope", ActorID: "tester",
	})
	if !errors.As(err, &verr) || verr.Errors[0] != "Unknown event type: customer.nope" {
		t.Fatalf("unknown type: %v", err)
	}

	// disabled types are not recordable either
	_, err = env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID:  testTenant,
		EventType: "strategic.market_alert",
		Payload:   map[string]any{"alertType": "competitor", "summary": "price drop"},
		ActorID:   "tester",
	})
	if !errors.As(err, &verr) || verr.Errors[0] != "Unknown event type: strategic.market_alert" {
		t.Fatalf("disabled type: %v", err)
	}

	occs, err := env.Engine.Repo.ListOccurrences(env.Ctx, repo.OccurrenceFilters{TenantID: testTenant})
	if err != nil || len(occs) != 0 {
		t.Fatalf("rejected events must persist nothing: %d err=%v", len(occs), err)
	}
}

func TestRecordEventKeepsUnassignableTasks(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID:  testTenant,
		EventType: "customer.inquiry_received",
		Payload:   inquiryPayload(),
		ActorID:   "gateway",
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	if len(res.Tasks) != 2 || len(res.Unassigned) != 2 {
		t.Fatalf("tasks=%d unassigned=%d", len(res.Tasks), len(res.Unassigned))
	}
	task := res.Tasks[0]
	if !task.Unassigned || task.AssigneeID != nil {
		t.Fatalf("task should be unassigned: %+v", task)
	}
	if task.UnassignedReason == nil ||
		*task.UnassignedReason != `no holder for role "sales_rep" or fallback role "sales_manager"` {
		t.Fatalf("reason: %v", task.UnassignedReason)
	}
	// the notification still dispatches, carrying the unresolved target
	if len(res.Notifications) != 1 || !strings.Contains(res.Notifications[0].RecipientsJSON, "no holder for role") {
		t.Fatalf("notification recipients: %+v", res.Notifications)
	}
}

func TestRecordEventFallsBackWhenPrimaryUnstaffed(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "u-boss", "sales", "sales_manager")

	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID:  testTenant,
		EventType: "customer.inquiry_received",
		Payload:   inquiryPayload(),
		ActorID:   "gateway",
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	task := res.Tasks[0]
	if task.AssigneeID == nil || *task.AssigneeID != "u-boss" {
		t.Fatalf("fallback assignee: %v", task.AssigneeID)
	}
	if task.AssignKind != "role" || task.AssignValue != "sales_manager" {
		t.Fatalf("assignment should record the fallback target: %s %s", task.AssignKind, task.AssignValue)
	}
	if task.Unassigned || len(res.Unassigned) != 0 {
		t.Fatalf("fallback success must not flag unassigned")
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "u-rep", "sales", "sales_rep")
	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "u-rep",
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	first, second := res.Tasks[0], res.Tasks[1]

	// open cannot jump straight to done
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: first.ID, Status: "done", ActorID: "u-rep",
	})
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("open->done: %v", err)
	}

	task, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: first.ID, Status: "in_progress", ActorID: "u-rep",
	})
	if err != nil || task.Status != "in_progress" || task.CompletedAt != nil {
		t.Fatalf("to in_progress: %+v err=%v", task, err)
	}
	task, err = env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: first.ID, Status: "done", ActorID: "u-rep",
	})
	if err != nil || task.Status != "done" {
		t.Fatalf("to done: %+v err=%v", task, err)
	}
	if task.CompletedAt == nil || *task.CompletedAt != "2026-03-02T09:00:00Z" {
		t.Fatalf("completed at: %v", task.CompletedAt)
	}
	// done is terminal
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: first.ID, Status: "open", ActorID: "u-rep",
	})
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("done->open: %v", err)
	}

	// in_progress can be put back to open, and canceled is terminal
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: second.ID, Status: "in_progress", ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("second to in_progress: %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: second.ID, Status: "open", ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("back to open: %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: second.ID, Status: "canceled", ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: second.ID, Status: "in_progress", ActorID: "u-rep",
	})
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("canceled->in_progress: %v", err)
	}

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: "missing", Status: "in_progress", ActorID: "u-rep",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
}

func TestReassignTask(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "gateway",
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	orphan := res.Tasks[0]

	_, err = env.Engine.ReassignTask(env.Ctx, engine.ReassignOptions{
		TenantID: testTenant, TaskID: orphan.ID, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("empty assignee should fail")
	}

	task, err := env.Engine.ReassignTask(env.Ctx, engine.ReassignOptions{
		TenantID: testTenant, TaskID: orphan.ID, AssigneeID: "u-new", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if task.AssigneeID == nil || *task.AssigneeID != "u-new" || task.Unassigned || task.UnassignedReason != nil {
		t.Fatalf("reassign should clear the unassigned state: %+v", task)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, testTenant, orphan.ID)
	if err != nil || got.AssigneeID == nil || *got.AssigneeID != "u-new" {
		t.Fatalf("persisted assignee: %+v err=%v", got, err)
	}
	if auditCount(t, env, audit.TaskReassigned) != 1 {
		t.Fatalf("task_reassigned entry missing")
	}

	// terminal tasks cannot move
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: orphan.ID, Status: "canceled", ActorID: "tester",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = env.Engine.ReassignTask(env.Ctx, engine.ReassignOptions{
		TenantID: testTenant, TaskID: orphan.ID, AssigneeID: "u-other", ActorID: "tester",
	})
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("reassigning a canceled task: %v", err)
	}
}

func TestNextTaskOrdering(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "u-rep", "sales", "sales_rep")
	if _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("record event: %v", err)
	}

	// P1 respond_inquiry beats P2 create_lead
	next, err := env.Engine.NextTask(env.Ctx, testTenant, "u-rep", false)
	if err != nil || next.TaskType != "respond_inquiry" {
		t.Fatalf("next: %+v err=%v", next, err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: next.ID, Status: "canceled", ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	next, err = env.Engine.NextTask(env.Ctx, testTenant, "u-rep", false)
	if err != nil || next.TaskType != "create_lead" {
		t.Fatalf("next after cancel: %+v err=%v", next, err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, engine.TaskStatusOptions{
		TenantID: testTenant, TaskID: next.ID, Status: "canceled", ActorID: "u-rep",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.NextTask(env.Ctx, testTenant, "u-rep", false); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("empty queue: %v", err)
	}
}

func TestNextTaskIncludesUnassigned(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "gateway",
	}); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if _, err := env.Engine.NextTask(env.Ctx, testTenant, "u-any", false); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("strict queue should be empty: %v", err)
	}
	next, err := env.Engine.NextTask(env.Ctx, testTenant, "u-any", true)
	if err != nil || next.TaskType != "respond_inquiry" || !next.Unassigned {
		t.Fatalf("unassigned pickup: %+v err=%v", next, err)
	}
}

func TestSimulateEventPersistsNothing(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.Engine.SimulateEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "tester",
	})
	if err != nil || !res.Valid {
		t.Fatalf("simulate: %+v err=%v", res, err)
	}
	if len(res.Tasks) != 2 || res.Unassigned != 2 {
		t.Fatalf("preview: %d tasks %d unassigned", len(res.Tasks), res.Unassigned)
	}
	if res.Tasks[0].ID != "" {
		t.Fatalf("previews carry no ids: %+v", res.Tasks[0])
	}

	// an invalid payload is a reported outcome, not an error
	res, err = env.Engine.SimulateEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: nil, ActorID: "tester",
	})
	if err != nil || res.Valid || len(res.Errors) == 0 {
		t.Fatalf("invalid simulate: %+v err=%v", res, err)
	}

	occs, _ := env.Engine.Repo.ListOccurrences(env.Ctx, repo.OccurrenceFilters{TenantID: testTenant})
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{TenantID: testTenant})
	notifs, _ := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{TenantID: testTenant})
	if len(occs)+len(tasks)+len(notifs) != 0 {
		t.Fatalf("simulation wrote rows: %d/%d/%d", len(occs), len(tasks), len(notifs))
	}
}

func TestImportConfigReplacesCatalog(t *testing.T) {
	env := newTestEnv(t)

	repl := config.Default(testTenant)
	repl.Events = []catalog.EventDefinition{{
		EventType: "production.line_stopped",
		Category:  catalog.CategoryProduction,
		Schema:    catalog.Schema{Required: []string{"lineId"}},
		Tasks: []catalog.TaskTemplate{{
			TaskType:  "restart_line",
			Title:     "Restart line {{payload.lineId}}",
			Priority:  catalog.PriorityP0,
			DueInDays: 1,
			AssignTo:  catalog.AssignTarget{Kind: catalog.TargetRole, Value: "production_manager"},
		}},
	}}
	repl.Roles = nil
	if err := repl.Validate(); err != nil {
		t.Fatalf("replacement config: %v", err)
	}

	imported, err := env.Engine.ImportConfig(env.Ctx, testTenant, repl, "tester")
	if err != nil || len(imported.Events) != 1 {
		t.Fatalf("import: %v events=%d", err, len(imported.Events))
	}

	// the old vocabulary is gone
	var verr *engine.ValidationError
	_, err = env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received", Payload: inquiryPayload(), ActorID: "tester",
	})
	if !errors.As(err, &verr) {
		t.Fatalf("old type should be unknown now: %v", err)
	}
	res, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "production.line_stopped",
		Payload: map[string]any{"lineId": "L1"}, ActorID: "tester",
	})
	if err != nil || len(res.Tasks) != 1 || res.Tasks[0].Title != "Restart line L1" {
		t.Fatalf("new type: %+v err=%v", res.Tasks, err)
	}

	out, err := env.Engine.ExportConfig(env.Ctx, testTenant)
	if err != nil || !strings.Contains(string(out), "production.line_stopped") {
		t.Fatalf("export: %v", err)
	}
	if auditCount(t, env, audit.ConfigUpdated) != 1 {
		t.Fatalf("config_updated entry missing")
	}
}

func TestPurgeExpiredAppliesRetention(t *testing.T) {
	env := newTestEnv(t)

	// inquiry retention is 365 days without archive
	if _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received",
		Payload: inquiryPayload(), OccurredAt: "2024-01-01T00:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatalf("old inquiry: %v", err)
	}
	// orders archive before deletion after 730 days
	if _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.order_placed",
		Payload:    map[string]any{"orderId": "o-1", "customerId": "c-1", "totalAmount": float64(500)},
		OccurredAt: "2023-06-15T00:00:00Z", ActorID: "tester",
	}); err != nil {
		t.Fatalf("old order: %v", err)
	}
	// fresh occurrences stay
	if _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		TenantID: testTenant, EventType: "customer.inquiry_received",
		Payload: inquiryPayload(), ActorID: "tester",
	}); err != nil {
		t.Fatalf("fresh inquiry: %v", err)
	}

	res, err := env.Engine.PurgeExpired(env.Ctx, testTenant, "sweeper")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if res.Archived != 1 || res.Deleted != 2 {
		t.Fatalf("sweep counts: %+v", res)
	}
	occs, err := env.Engine.Repo.ListOccurrences(env.Ctx, repo.OccurrenceFilters{TenantID: testTenant})
	if err != nil || len(occs) != 1 || occs[0].OccurredAt != "2026-03-02T09:00:00Z" {
		t.Fatalf("survivors: %+v err=%v", occs, err)
	}
	if auditCount(t, env, audit.RetentionSwept) != 1 {
		t.Fatalf("retention_swept entry missing")
	}

	// an idle sweep records nothing
	res, err = env.Engine.PurgeExpired(env.Ctx, testTenant, "sweeper")
	if err != nil || res.Archived != 0 || res.Deleted != 0 {
		t.Fatalf("second sweep: %+v err=%v", res, err)
	}
	if auditCount(t, env, audit.RetentionSwept) != 1 {
		t.Fatalf("idle sweep should not audit")
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	key, plaintext, err := env.Engine.CreateAPIKey(env.Ctx, testTenant, "ci", "u-ops")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !strings.HasPrefix(plaintext, "dwk_") || len(plaintext) != len("dwk_")+48 {
		t.Fatalf("plaintext format: %q", plaintext)
	}
	if key.KeyHash != repo.HashAPIKey(plaintext) {
		t.Fatalf("stored hash does not match the plaintext")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plaintext))
	if err != nil || got.ID != key.ID || got.ActorID != "u-ops" {
		t.Fatalf("lookup by hash: %+v err=%v", got, err)
	}
	keys, err := env.Engine.Repo.ListAPIKeys(env.Ctx, testTenant, "")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list keys: %d err=%v", len(keys), err)
	}

	if err := env.Engine.RevokeAPIKey(env.Ctx, testTenant, key.ID, "u-ops"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plaintext)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, testTenant, key.ID, "u-ops"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double revoke: %v", err)
	}
	if auditCount(t, env, audit.APIKeyCreated) != 1 || auditCount(t, env, audit.APIKeyRevoked) != 1 {
		t.Fatalf("api key audit trail incomplete")
	}

	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, testTenant, "x", ""); err == nil {
		t.Fatalf("empty actor should fail")
	}
}

func TestUserDirectory(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "u-boss", "sales", "sales_manager")

	mgr := "u-boss"
	created, err := env.Engine.UpsertUser(env.Ctx, domain.User{
		ID: "u-1", TenantID: testTenant, Name: "Rena", Department: "sales",
		ManagerID: &mgr, Active: true, Roles: []string{"sales_rep"},
	}, "tester")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !reflect.DeepEqual(created.Roles, []string{"sales_rep"}) || !created.Active {
		t.Fatalf("created user: %+v", created)
	}
	if got, err := env.Engine.Repo.ManagerOf(env.Ctx, testTenant, "u-1"); err != nil || got != "u-boss" {
		t.Fatalf("manager: %q err=%v", got, err)
	}
	if ids, _ := env.Engine.Repo.UsersWithRole(env.Ctx, testTenant, "sales_rep"); !reflect.DeepEqual(ids, []string{"u-1"}) {
		t.Fatalf("role holders: %v", ids)
	}

	// a nil Roles slice leaves the role set alone
	renamed, err := env.Engine.UpsertUser(env.Ctx, domain.User{
		ID: "u-1", TenantID: testTenant, Name: "Rena G", Department: "sales", Active: true,
	}, "tester")
	if err != nil || renamed.Name != "Rena G" || !reflect.DeepEqual(renamed.Roles, []string{"sales_rep"}) {
		t.Fatalf("rename kept roles: %+v err=%v", renamed, err)
	}

	updated, err := env.Engine.SetUserRoles(env.Ctx, testTenant, "u-1", []string{"accountant"}, "tester")
	if err != nil || !reflect.DeepEqual(updated.Roles, []string{"accountant"}) {
		t.Fatalf("set roles: %+v err=%v", updated, err)
	}
	if ids, _ := env.Engine.Repo.UsersWithRole(env.Ctx, testTenant, "sales_rep"); len(ids) != 0 {
		t.Fatalf("old role should be empty: %v", ids)
	}

	// deactivated users stop holding roles for staffing purposes
	if _, err := env.Engine.UpsertUser(env.Ctx, domain.User{
		ID: "u-1", TenantID: testTenant, Name: "Rena G", Department: "sales", Active: false,
	}, "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if ids, _ := env.Engine.Repo.UsersWithRole(env.Ctx, testTenant, "accountant"); len(ids) != 0 {
		t.Fatalf("inactive users still staffed: %v", ids)
	}

	if err := env.Engine.RemoveUser(env.Ctx, testTenant, "u-1", "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := env.Engine.Repo.GetUser(env.Ctx, testTenant, "u-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("removed user still resolves: %v", err)
	}
	if _, err := env.Engine.UpsertUser(env.Ctx, domain.User{TenantID: testTenant}, "tester"); err == nil {
		t.Fatalf("empty user id should fail")
	}
}

func TestCheckCapabilityAndApproval(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		chk  engine.CapabilityCheck
		want bool
	}{
		{"hr manager approves leave", engine.CapabilityCheck{Role: "hr_manager", EventType: "hr.leave_requested", TaskType: "approve_leave", Action: "approve"}, true},
		{"sales rep cannot approve leave", engine.CapabilityCheck{Role: "sales_rep", EventType: "hr.leave_requested", TaskType: "approve_leave", Action: "approve"}, false},
		{"sales rep handles inquiries", engine.CapabilityCheck{Role: "sales_rep", EventType: "customer.inquiry_received", Action: "handle"}, true},
		{"sales rep initiates inquiries", engine.CapabilityCheck{Role: "sales_rep", EventType: "customer.inquiry_received", Action: "initiate"}, true},
		{"sales rep executes responses", engine.CapabilityCheck{Role: "sales_rep", EventType: "customer.inquiry_received", TaskType: "respond_inquiry", Action: "execute"}, true},
		{"sales rep cannot approve responses", engine.CapabilityCheck{Role: "sales_rep", EventType: "customer.inquiry_received", TaskType: "respond_inquiry", Action: "approve"}, false},
	}
	for _, tc := range cases {
		got, err := env.Engine.CheckCapability(env.Ctx, testTenant, tc.chk)
		if err != nil || got != tc.want {
			t.Errorf("%s: got %v err=%v", tc.name, got, err)
		}
	}

	if _, err := env.Engine.CheckCapability(env.Ctx, testTenant, engine.CapabilityCheck{
		Role: "ghost", EventType: "customer.inquiry_received", Action: "handle",
	}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown role: %v", err)
	}
	if _, err := env.Engine.CheckCapability(env.Ctx, testTenant, engine.CapabilityCheck{
		Role: "sales_rep", EventType: "customer.inquiry_received", Action: "veto",
	}); err == nil {
		t.Fatalf("unknown action should fail")
	}

	dec, err := env.Engine.CheckApproval(env.Ctx, testTenant, "sales_manager", "discount", 5000)
	if err != nil || !dec.Allowed || !dec.HasAuthority || dec.Limit == nil || *dec.Limit != 5000 {
		t.Fatalf("discount at limit: %+v err=%v", dec, err)
	}
	dec, _ = env.Engine.CheckApproval(env.Ctx, testTenant, "sales_manager", "discount", 5001)
	if dec.Allowed || !dec.HasAuthority {
		t.Fatalf("discount above limit: %+v", dec)
	}
	dec, _ = env.Engine.CheckApproval(env.Ctx, testTenant, "hr_manager", "leave", 1<<40)
	if !dec.Allowed || dec.Limit != nil {
		t.Fatalf("unlimited leave authority: %+v", dec)
	}
	dec, _ = env.Engine.CheckApproval(env.Ctx, testTenant, "sales_rep", "discount", 1)
	if dec.Allowed || dec.HasAuthority {
		t.Fatalf("absent authority: %+v", dec)
	}
}

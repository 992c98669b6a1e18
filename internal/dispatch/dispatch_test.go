package dispatch_test

import (
	"strings"
	"testing"
	"time"

	"dawin/internal/catalog"
	"dawin/internal/config"
	"dawin/internal/dispatch"
)

func cond(field string, op catalog.Operator, value any) catalog.Condition {
	return catalog.Condition{Field: field, Operator: op, Value: value}
}

func TestEvalOperators(t *testing.T) {
	payload := map[string]any{
		"amount":   float64(1500),
		"count":    3,
		"severity": "high",
		"flagged":  true,
		"note":     nil,
	}
	cases := []struct {
		name string
		cond catalog.Condition
		want bool
	}{
		{"exists present", cond("severity", catalog.OpExists, nil), true},
		{"exists absent", cond("missing", catalog.OpExists, nil), false},
		{"exists null counts as absent", cond("note", catalog.OpExists, nil), false},
		{"exists false wants absence", cond("missing", catalog.OpExists, false), true},
		{"exists false fails when present", cond("severity", catalog.OpExists, false), false},
		{"eq string", cond("severity", catalog.OpEq, "high"), true},
		{"eq string mismatch", cond("severity", catalog.OpEq, "low"), false},
		{"eq numeric across go types", cond("count", catalog.OpEq, float64(3)), true},
		{"eq bool", cond("flagged", catalog.OpEq, true), true},
		{"eq missing field", cond("missing", catalog.OpEq, "x"), false},
		{"gt", cond("amount", catalog.OpGt, 1000), true},
		{"gt boundary is strict", cond("amount", catalog.OpGt, float64(1500)), false},
		{"gte boundary", cond("amount", catalog.OpGte, float64(1500)), true},
		{"lt", cond("amount", catalog.OpLt, 2000), true},
		{"lt boundary is strict", cond("amount", catalog.OpLt, float64(1500)), false},
		{"lte boundary", cond("amount", catalog.OpLte, float64(1500)), true},
		{"lt string lexical", cond("severity", catalog.OpLt, "low"), true},
		{"gt missing field", cond("missing", catalog.OpGt, 0), false},
		{"gt string against number has no order", cond("severity", catalog.OpGt, 10), false},
		{"in hit", cond("severity", catalog.OpIn, []any{"high", "critical"}), true},
		{"in miss", cond("severity", catalog.OpIn, []any{"low"}), false},
		{"in numeric across go types", cond("count", catalog.OpIn, []any{float64(3)}), true},
		{"in non-list never matches", cond("severity", catalog.OpIn, "high"), false},
		{"in missing field", cond("missing", catalog.OpIn, []any{"x"}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := dispatch.Eval([]catalog.Condition{tc.cond}, payload); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestEvalAllConditionsMustHold(t *testing.T) {
	payload := map[string]any{"amount": float64(50), "kind": "refund"}
	both := []catalog.Condition{
		cond("amount", catalog.OpGt, 10),
		cond("kind", catalog.OpEq, "refund"),
	}
	if !dispatch.Eval(both, payload) {
		t.Fatalf("all conditions hold, expected true")
	}
	oneFails := []catalog.Condition{
		cond("amount", catalog.OpGt, 100),
		cond("kind", catalog.OpEq, "refund"),
	}
	if dispatch.Eval(oneFails, payload) {
		t.Fatalf("one failing condition must fail the set")
	}
	if !dispatch.Eval(nil, payload) {
		t.Fatalf("empty condition set always holds")
	}
}

func TestInterpolate(t *testing.T) {
	payload := map[string]any{
		"customerName": "Globex",
		"order":        map[string]any{"id": "o-17", "total": float64(1200)},
		"ratio":        99.5,
		"approved":     true,
		"note":         nil,
	}
	cases := []struct {
		name, in, want string
	}{
		{"simple", "Respond to {{payload.customerName}}", "Respond to Globex"},
		{"dotted path", "Order {{payload.order.id}} total {{payload.order.total}}", "Order o-17 total 1200"},
		{"inner whitespace", "{{ payload.customerName }}", "Globex"},
		{"missing path stays literal", "Hello {{payload.missing}}", "Hello {{payload.missing}}"},
		{"missing nested path stays literal", "{{payload.order.missing}}", "{{payload.order.missing}}"},
		{"null leaf stays literal", "Note {{payload.note}}", "Note {{payload.note}}"},
		{"bool", "Approved: {{payload.approved}}", "Approved: true"},
		{"fraction keeps digits", "Ratio {{payload.ratio}}", "Ratio 99.5"},
		{"multiple placeholders", "{{payload.customerName}}/{{payload.order.id}}", "Globex/o-17"},
		{"other namespaces untouched", "{{actor.id}}", "{{actor.id}}"},
		{"no placeholders", "plain text", "plain text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := dispatch.Interpolate(tc.in, payload); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

// stubDirectory answers holder checks from a fixed kind:value set.
type stubDirectory map[string]bool

func (d stubDirectory) HasHolders(kind catalog.TargetKind, value string) bool {
	return d[string(kind)+":"+value]
}

func ticketCatalog() *catalog.Catalog {
	return catalog.New([]catalog.EventDefinition{{
		EventType: "customer.ticket_opened",
		Category:  catalog.CategoryCustomer,
		Schema:    catalog.Schema{Required: []string{"requesterId", "severity"}},
		Tasks: []catalog.TaskTemplate{
			{
				TaskType:  "triage_ticket",
				Title:     "Triage ticket from {{payload.requesterId}}",
				Priority:  catalog.PriorityP1,
				DueInDays: 1,
				AssignTo: catalog.AssignTarget{
					Kind: catalog.TargetRole, Value: "support_agent",
					Fallback: &catalog.AssignTarget{Kind: catalog.TargetRole, Value: "support_manager"},
				},
			},
			{
				TaskType:   "escalate_ticket",
				Title:      "Escalate {{payload.severity}} ticket",
				Priority:   catalog.PriorityP0,
				AssignTo:   catalog.AssignTarget{Kind: catalog.TargetRole, Value: "support_manager"},
				Conditions: []catalog.Condition{cond("severity", catalog.OpIn, []any{"high", "critical"})},
			},
			{
				TaskType: "call_back",
				Title:    "Call back the requester",
				Priority: catalog.PriorityP2,
				AssignTo: catalog.AssignTarget{Kind: catalog.TargetUser, Value: "{{payload.requesterId}}"},
			},
		},
		Notifications: []catalog.NotificationTemplate{
			{
				Template:   "ticket_ack_{{payload.severity}}",
				Channels:   []catalog.Channel{catalog.ChannelEmail},
				Recipients: []catalog.AssignTarget{{Kind: catalog.TargetCreator}},
			},
		},
	}})
}

func TestDeriveDeclaredOrderAndConditions(t *testing.T) {
	d := dispatch.New(ticketCatalog(), nil)
	occurredAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	res := d.Derive(dispatch.Occurrence{
		EventType:  "customer.ticket_opened",
		Payload:    map[string]any{"requesterId": "u-9", "severity": "high"},
		OccurredAt: occurredAt,
		ActorID:    "u-9",
	})
	if len(res.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(res.Tasks))
	}
	for i, want := range []string{"triage_ticket", "escalate_ticket", "call_back"} {
		if res.Tasks[i].TaskType != want {
			t.Fatalf("task %d: got %s want %s", i, res.Tasks[i].TaskType, want)
		}
	}
	if got := res.Tasks[0].Title; got != "Triage ticket from u-9" {
		t.Fatalf("title not interpolated: %q", got)
	}
	if got := res.Tasks[0].DueAt; !got.Equal(occurredAt.Add(24 * time.Hour)) {
		t.Fatalf("due date: got %v", got)
	}
	if got := res.Tasks[1].DueAt; !got.Equal(occurredAt) {
		t.Fatalf("zero due_in_days should keep the occurrence time, got %v", got)
	}

	// low severity drops the conditional escalation but keeps order
	res = d.Derive(dispatch.Occurrence{
		EventType:  "customer.ticket_opened",
		Payload:    map[string]any{"requesterId": "u-9", "severity": "low"},
		OccurredAt: occurredAt,
	})
	if len(res.Tasks) != 2 || res.Tasks[0].TaskType != "triage_ticket" || res.Tasks[1].TaskType != "call_back" {
		t.Fatalf("conditional skip broke ordering: %+v", res.Tasks)
	}
}

func TestDeriveUnknownTypeYieldsNothing(t *testing.T) {
	d := dispatch.New(ticketCatalog(), nil)
	res := d.Derive(dispatch.Occurrence{EventType: "customer.nope", Payload: map[string]any{}})
	if len(res.Tasks) != 0 || len(res.Notifications) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestDeriveFallbackAssignment(t *testing.T) {
	occ := dispatch.Occurrence{
		EventType:  "customer.ticket_opened",
		Payload:    map[string]any{"requesterId": "u-9", "severity": "low"},
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	// primary unstaffed, fallback staffed
	d := dispatch.New(ticketCatalog(), stubDirectory{"role:support_manager": true})
	res := d.Derive(occ)
	a := res.Tasks[0].Assign
	if !a.FellBack || a.Kind != catalog.TargetRole || a.Value != "support_manager" {
		t.Fatalf("expected fallback assignment, got %+v", a)
	}
	if a.Unassignable {
		t.Fatalf("fallback success must not be unassignable")
	}

	// both unstaffed surfaces the task with a reason, never drops it
	d = dispatch.New(ticketCatalog(), stubDirectory{})
	res = d.Derive(occ)
	a = res.Tasks[0].Assign
	if !a.Unassignable || a.Value != "support_agent" {
		t.Fatalf("expected unassignable primary, got %+v", a)
	}
	if a.Reason != `no holder for role "support_agent" or fallback role "support_manager"` {
		t.Fatalf("reason: %q", a.Reason)
	}

	// no declared fallback
	occ.Payload["severity"] = "high"
	res = d.Derive(occ)
	if len(res.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(res.Tasks))
	}
	a = res.Tasks[1].Assign
	if !a.Unassignable || a.Reason != `no holder for role "support_manager" and no fallback declared` {
		t.Fatalf("no-fallback reason: %+v", a)
	}

	// user targets skip staffing entirely
	if a := res.Tasks[2].Assign; a.Unassignable || a.Kind != catalog.TargetUser || a.Value != "u-9" {
		t.Fatalf("user assignment: %+v", a)
	}
}

func TestDeriveConcretizesActorTargets(t *testing.T) {
	c := catalog.New([]catalog.EventDefinition{{
		EventType: "hr.leave_requested",
		Category:  catalog.CategoryHR,
		Tasks: []catalog.TaskTemplate{
			{
				TaskType: "approve_leave",
				Title:    "Approve leave",
				Priority: catalog.PriorityP1,
				AssignTo: catalog.AssignTarget{Kind: catalog.TargetManager, Value: "{{payload.employeeId}}"},
			},
			{
				TaskType: "self_review",
				Title:    "Review your own request",
				Priority: catalog.PriorityP2,
				AssignTo: catalog.AssignTarget{Kind: catalog.TargetManager},
			},
			{
				TaskType: "confirm_dates",
				Title:    "Confirm dates",
				Priority: catalog.PriorityP2,
				AssignTo: catalog.AssignTarget{Kind: catalog.TargetCreator},
			},
		},
	}})
	res := dispatch.New(c, stubDirectory{}).Derive(dispatch.Occurrence{
		EventType:  "hr.leave_requested",
		Payload:    map[string]any{"employeeId": "emp-4"},
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ActorID:    "emp-4",
	})
	if a := res.Tasks[0].Assign; a.Kind != catalog.TargetManager || a.Value != "emp-4" {
		t.Fatalf("manager target should interpolate the subject, got %+v", a)
	}
	// empty manager value means the actor's own manager
	if a := res.Tasks[1].Assign; a.Value != "emp-4" {
		t.Fatalf("empty manager value should fall back to the actor, got %+v", a)
	}
	if a := res.Tasks[2].Assign; a.Kind != catalog.TargetCreator || a.Value != "emp-4" {
		t.Fatalf("creator target should carry the actor, got %+v", a)
	}
}

func TestDeriveNotificationTemplateNameStaysLiteral(t *testing.T) {
	res := dispatch.New(ticketCatalog(), nil).Derive(dispatch.Occurrence{
		EventType:  "customer.ticket_opened",
		Payload:    map[string]any{"requesterId": "u-9", "severity": "high"},
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ActorID:    "u-9",
	})
	if len(res.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(res.Notifications))
	}
	n := res.Notifications[0]
	if n.Template != "ticket_ack_{{payload.severity}}" {
		t.Fatalf("template name must not be interpolated, got %q", n.Template)
	}
	if len(n.Recipients) != 1 || n.Recipients[0].Value != "u-9" {
		t.Fatalf("creator recipient: %+v", n.Recipients)
	}
}

func TestDeriveSeededInquiryFlow(t *testing.T) {
	cat := config.Default("acme").Catalog()
	d := dispatch.New(cat, nil)
	occurredAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	payload := map[string]any{
		"customerName":  "Globex",
		"customerEmail": "ops@globex.example",
		"inquiryType":   "pricing",
		"subject":       "Bulk pricing",
	}

	// no customerId on file: respond and also create a lead
	res := d.Derive(dispatch.Occurrence{
		EventType:  "customer.inquiry_received",
		Payload:    payload,
		OccurredAt: occurredAt,
		ActorID:    "gateway",
	})
	if len(res.Tasks) != 2 || res.Tasks[0].TaskType != "respond_inquiry" || res.Tasks[1].TaskType != "create_lead" {
		t.Fatalf("tasks: %+v", res.Tasks)
	}
	if got := res.Tasks[0].Title; got != "Respond to inquiry from Globex" {
		t.Fatalf("title: %q", got)
	}
	if !strings.Contains(res.Tasks[0].Description, "ops@globex.example") {
		t.Fatalf("description: %q", res.Tasks[0].Description)
	}
	if len(res.Notifications) != 1 || res.Notifications[0].Template != "new_inquiry" {
		t.Fatalf("notifications: %+v", res.Notifications)
	}

	// a known customer suppresses the lead task
	payload["customerId"] = "c-201"
	res = d.Derive(dispatch.Occurrence{EventType: "customer.inquiry_received", Payload: payload, OccurredAt: occurredAt})
	if len(res.Tasks) != 1 || res.Tasks[0].TaskType != "respond_inquiry" {
		t.Fatalf("known customer should skip create_lead: %+v", res.Tasks)
	}
}

func TestDeriveSeededOverdueInvoiceBranches(t *testing.T) {
	cat := config.Default("acme").Catalog()
	d := dispatch.New(cat, nil)
	occurredAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	deeply := d.Derive(dispatch.Occurrence{
		EventType: "financial.invoice_overdue",
		Payload: map[string]any{
			"invoiceId": "inv-88", "customerId": "c-7",
			"amountDue": float64(7500), "daysOverdue": float64(45),
		},
		OccurredAt: occurredAt,
	})
	if len(deeply.Tasks) != 1 || deeply.Tasks[0].TaskType != "escalate_debt" {
		t.Fatalf("45 days overdue should escalate only: %+v", deeply.Tasks)
	}
	if len(deeply.Notifications) != 1 || deeply.Notifications[0].Template != "overdue_alert" {
		t.Fatalf("large amount should alert: %+v", deeply.Notifications)
	}

	mildly := d.Derive(dispatch.Occurrence{
		EventType: "financial.invoice_overdue",
		Payload: map[string]any{
			"invoiceId": "inv-89", "customerId": "c-7",
			"amountDue": float64(1200), "daysOverdue": float64(10),
		},
		OccurredAt: occurredAt,
	})
	if len(mildly.Tasks) != 1 || mildly.Tasks[0].TaskType != "send_reminder" {
		t.Fatalf("10 days overdue should remind only: %+v", mildly.Tasks)
	}
	if len(mildly.Notifications) != 0 {
		t.Fatalf("small amount should not alert: %+v", mildly.Notifications)
	}
}

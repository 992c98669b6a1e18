package roles_test

import (
	"reflect"
	"testing"

	"dawin/internal/roles"
)

func managerProfile() roles.Profile {
	credit := int64(500)
	return roles.Profile{
		Role:       "support_manager",
		Name:       "Support Manager",
		Department: "support",
		TaskCapabilities: []roles.TaskCapability{
			{
				EventType:   "customer.complaint_received",
				TaskTypes:   []string{"acknowledge_complaint", "escalate_complaint"},
				CanExecute:  true,
				CanApprove:  true,
				CanDelegate: true,
			},
			{
				EventType:  "production.quality_issue",
				TaskTypes:  []string{"notify_affected_customers"},
				CanExecute: true,
			},
		},
		ApprovalAuthorities: []roles.ApprovalAuthority{
			{Type: "goodwill_credit", CanApproveFor: "support", MaxAmount: &credit},
			{Type: "leave", CanApproveFor: "department"},
		},
	}
}

func TestCanHandleEvent(t *testing.T) {
	p := managerProfile()
	if !p.CanHandleEvent("customer.complaint_received") {
		t.Fatalf("declared event should be handled")
	}
	if p.CanHandleEvent("financial.invoice_overdue") {
		t.Fatalf("undeclared event should not be handled")
	}
}

func TestTaskFlagsAreGatedPerEntry(t *testing.T) {
	p := managerProfile()
	cases := []struct {
		name      string
		got, want bool
	}{
		{"execute listed task", p.CanExecuteTask("customer.complaint_received", "acknowledge_complaint"), true},
		{"approve listed task", p.CanApproveTask("customer.complaint_received", "escalate_complaint"), true},
		{"delegate listed task", p.CanDelegateTask("customer.complaint_received", "acknowledge_complaint"), true},
		{"execute task missing from entry", p.CanExecuteTask("customer.complaint_received", "refund_order"), false},
		{"execute entry without the flag still executes", p.CanExecuteTask("production.quality_issue", "notify_affected_customers"), true},
		{"approve entry without the flag", p.CanApproveTask("production.quality_issue", "notify_affected_customers"), false},
		{"delegate entry without the flag", p.CanDelegateTask("production.quality_issue", "notify_affected_customers"), false},
		{"execute unknown event", p.CanExecuteTask("hr.leave_requested", "approve_leave"), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
	if p.CanInitiateEvent("customer.complaint_received") {
		t.Fatalf("initiate flag was never granted")
	}
}

func TestApprovalAuthorities(t *testing.T) {
	p := managerProfile()
	if !p.HasAuthority("goodwill_credit") || p.HasAuthority("discount") {
		t.Fatalf("authority lookup mismatch")
	}

	limit, ok := p.ApprovalLimit("goodwill_credit")
	if !ok || limit == nil || *limit != 500 {
		t.Fatalf("goodwill limit: ok=%v limit=%v", ok, limit)
	}
	// nil limit with the authority held means unlimited
	limit, ok = p.ApprovalLimit("leave")
	if !ok || limit != nil {
		t.Fatalf("leave should be unlimited: ok=%v limit=%v", ok, limit)
	}
	if _, ok := p.ApprovalLimit("discount"); ok {
		t.Fatalf("missing authority should report not held")
	}

	if !p.CanApproveAmount("goodwill_credit", 500) {
		t.Fatalf("amount at the limit is allowed")
	}
	if p.CanApproveAmount("goodwill_credit", 501) {
		t.Fatalf("amount above the limit is denied")
	}
	if !p.CanApproveAmount("leave", 1<<40) {
		t.Fatalf("unlimited authority passes any amount")
	}
	if p.CanApproveAmount("discount", 1) {
		t.Fatalf("absent authority never approves")
	}
}

func TestRolesetLookup(t *testing.T) {
	rs := roles.NewRoleset([]roles.Profile{
		{Role: "sales_rep", Name: "Sales Representative"},
		{Role: "accountant", Name: "Accountant"},
		{Role: "sales_rep", Name: "Duplicate, ignored"},
	})
	if rs.Len() != 2 {
		t.Fatalf("duplicates should collapse, got %d profiles", rs.Len())
	}
	p, ok := rs.Profile("sales_rep")
	if !ok || p.Name != "Sales Representative" {
		t.Fatalf("first declaration should win: ok=%v p=%+v", ok, p)
	}
	if _, ok := rs.Profile("coo"); ok {
		t.Fatalf("unknown role should miss")
	}
	if got := rs.Roles(); !reflect.DeepEqual(got, []string{"sales_rep", "accountant"}) {
		t.Fatalf("declaration order lost: %v", got)
	}
}

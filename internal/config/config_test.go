package config_test

import (
	"os"
	"strings"
	"testing"

	"dawin/internal/catalog"
	"dawin/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default("acme")
	if cfg.Version != 1 || cfg.Tenant.ID != "acme" {
		t.Fatalf("header: version=%d tenant=%q", cfg.Version, cfg.Tenant.ID)
	}
	if len(cfg.Events) != 12 || len(cfg.Roles) != 12 {
		t.Fatalf("seed size: %d events, %d roles", len(cfg.Events), len(cfg.Roles))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cat := cfg.Catalog()
	if cat.Len() != 12 {
		t.Fatalf("catalog length: %d", cat.Len())
	}
	// strategic.market_alert ships disabled
	if len(cat.EnabledTypes()) != 11 {
		t.Fatalf("enabled types: %d", len(cat.EnabledTypes()))
	}
	if _, ok := cat.Definition("strategic.market_alert"); ok {
		t.Fatalf("market alert should be disabled")
	}
	if _, ok := cat.Declared("strategic.market_alert"); !ok {
		t.Fatalf("market alert should still be declared")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("acme")))
	if err != nil {
		t.Fatalf("generated template must parse and validate: %v", err)
	}
	if cfg.Tenant.ID != "acme" || !cfg.SingleTenant {
		t.Fatalf("tenant header: %+v", cfg.Tenant)
	}
}

func TestSeededRoleCapabilities(t *testing.T) {
	rs := config.Default("acme").Roleset()

	hr, ok := rs.Profile("hr_manager")
	if !ok {
		t.Fatalf("hr_manager missing")
	}
	if !hr.CanApproveTask("hr.leave_requested", "approve_leave") {
		t.Fatalf("hr_manager should approve leave requests")
	}
	sales, ok := rs.Profile("sales_rep")
	if !ok || sales.CanApproveTask("hr.leave_requested", "approve_leave") {
		t.Fatalf("sales_rep should not approve leave requests")
	}
	if !sales.CanExecuteTask("customer.inquiry_received", "respond_inquiry") {
		t.Fatalf("sales_rep should execute inquiry responses")
	}

	mgr, _ := rs.Profile("sales_manager")
	limit, held := mgr.ApprovalLimit("discount")
	if !held || limit == nil || *limit != 5000 {
		t.Fatalf("sales_manager discount limit: held=%v limit=%v", held, limit)
	}
	if !mgr.CanApproveAmount("discount", 5000) || mgr.CanApproveAmount("discount", 5001) {
		t.Fatalf("discount cap should be inclusive at 5000")
	}
	limit, held = hr.ApprovalLimit("leave")
	if !held || limit != nil {
		t.Fatalf("hr_manager leave authority should be unlimited: held=%v limit=%v", held, limit)
	}
}

func TestValidateRejects(t *testing.T) {
	neg := int64(-5)
	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"wrong version", func(c *config.Config) { c.Version = 2 }, "version must be 1"},
		{"missing tenant id", func(c *config.Config) { c.Tenant.ID = "" }, "tenant.id is required"},
		{"no events", func(c *config.Config) { c.Events = nil }, "at least one event"},
		{"undotted event type", func(c *config.Config) { c.Events[0].EventType = "inquiry" }, "not a dotted key"},
		{"duplicate event type", func(c *config.Config) { c.Events[1].EventType = c.Events[0].EventType }, "duplicate event type"},
		{"unknown category", func(c *config.Config) { c.Events[0].Category = "ops" }, "unknown category"},
		{"empty task title", func(c *config.Config) { c.Events[0].Tasks[0].Title = "" }, "empty title"},
		{"invalid priority", func(c *config.Config) { c.Events[0].Tasks[0].Priority = "P9" }, "invalid priority"},
		{"negative due days", func(c *config.Config) { c.Events[0].Tasks[0].DueInDays = -1 }, "negative due_in_days"},
		{"unknown operator", func(c *config.Config) { c.Events[0].Tasks[1].Conditions[0].Operator = "near" }, "unknown operator"},
		{"in wants a list", func(c *config.Config) {
			c.Events[0].Tasks[1].Conditions[0] = catalog.Condition{Field: "customerId", Operator: catalog.OpIn, Value: "x"}
		}, "requires a list value"},
		{"exists wants a bool", func(c *config.Config) {
			c.Events[0].Tasks[1].Conditions[0].Value = "yes"
		}, "takes a boolean value"},
		{"fallback on user target", func(c *config.Config) {
			c.Events[0].Tasks[0].AssignTo = catalog.AssignTarget{
				Kind: catalog.TargetUser, Value: "u-1",
				Fallback: &catalog.AssignTarget{Kind: catalog.TargetRole, Value: "sales_rep"},
			}
		}, "fallback declared on user target"},
		{"nested fallback", func(c *config.Config) {
			c.Events[0].Tasks[0].AssignTo.Fallback.Fallback = &catalog.AssignTarget{Kind: catalog.TargetRole, Value: "coo"}
		}, "cannot declare their own fallback"},
		{"notification without channels", func(c *config.Config) { c.Events[0].Notifications[0].Channels = nil }, "no channels"},
		{"unknown channel", func(c *config.Config) {
			c.Events[0].Notifications[0].Channels = []catalog.Channel{"fax"}
		}, "unknown channel"},
		{"notification without recipients", func(c *config.Config) { c.Events[0].Notifications[0].Recipients = nil }, "no recipients"},
		{"duplicate role", func(c *config.Config) { c.Roles[1].Role = c.Roles[0].Role }, "duplicate role profile"},
		{"role references unknown event", func(c *config.Config) {
			c.Roles[0].TaskCapabilities[0].EventType = "customer.ghost"
		}, "unknown event type"},
		{"negative approval limit", func(c *config.Config) {
			c.Roles[1].ApprovalAuthorities[0].MaxAmount = &neg
		}, "negative max_amount"},
		{"webhook without name", func(c *config.Config) {
			c.Webhooks = []config.Webhook{{URL: "https://crm.example/hook"}}
		}, "empty name"},
		{"webhook with bad url", func(c *config.Config) {
			c.Webhooks = []config.Webhook{{Name: "crm", URL: "not-a-url"}}
		}, "invalid url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default("acme")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should be silent: cfg=%v err=%v", cfg, err)
	}
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "dispatch.yml") {
		t.Fatalf("Load should name the missing file, got %v", err)
	}

	if err := os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("acme")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil || cfg == nil || cfg.Tenant.ID != "acme" {
		t.Fatalf("load after write: cfg=%+v err=%v", cfg, err)
	}
}

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dawin/internal/catalog"
	"dawin/internal/roles"
)

// Config models dispatch.yml: one tenant's event catalog, role profiles and
// webhook subscriptions.
type Config struct {
	Version int `yaml:"version" json:"version"`
	Tenant  struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name,omitempty" json:"name,omitempty"`
	} `yaml:"tenant" json:"tenant"`
	SingleTenant bool                      `yaml:"single_tenant,omitempty" json:"single_tenant,omitempty"`
	Events       []catalog.EventDefinition `yaml:"events" json:"events"`
	Roles        []roles.Profile           `yaml:"roles,omitempty" json:"roles,omitempty"`
	Webhooks     []Webhook                 `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// Webhook forwards audit entries to an external URL. Events filters by audit
// entry type; empty or "all" forwards everything.
type Webhook struct {
	Name   string   `yaml:"name" json:"name"`
	URL    string   `yaml:"url" json:"url"`
	Secret string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`
}

// Catalog compiles the declared events into the immutable registry.
func (c *Config) Catalog() *catalog.Catalog {
	return catalog.New(c.Events)
}

// Roleset compiles the declared role profiles.
func (c *Config) Roleset() *roles.Roleset {
	return roles.NewRoleset(c.Roles)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with dw catalog import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dispatch.yml")
}

// GenerateDefault returns default config YAML for a tenant.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	cfg.Tenant.ID = tenantID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, tenantID))).Decode(&cfg)
	return &cfg
}

// Validate ensures the config meets required structure and that every
// cross-reference resolves.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("config.version must be 1")
	}
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("config.events must declare at least one event definition")
	}
	declared := make(map[string]bool, len(c.Events))
	for _, def := range c.Events {
		if def.EventType == "" {
			return fmt.Errorf("event definition with empty event_type")
		}
		if !strings.Contains(def.EventType, ".") {
			return fmt.Errorf("event type %s is not a dotted key", def.EventType)
		}
		if declared[def.EventType] {
			return fmt.Errorf("duplicate event type %s", def.EventType)
		}
		declared[def.EventType] = true
		if !def.Category.Valid() {
			return fmt.Errorf("event %s has unknown category %q", def.EventType, def.Category)
		}
		for _, name := range def.Schema.Required {
			if name == "" {
				return fmt.Errorf("event %s has empty required field name", def.EventType)
			}
		}
		for i, tpl := range def.Tasks {
			if tpl.TaskType == "" {
				return fmt.Errorf("event %s task %d has empty task_type", def.EventType, i)
			}
			if tpl.Title == "" {
				return fmt.Errorf("event %s task %s has empty title", def.EventType, tpl.TaskType)
			}
			if !tpl.Priority.Valid() {
				return fmt.Errorf("event %s task %s has invalid priority %q", def.EventType, tpl.TaskType, tpl.Priority)
			}
			if tpl.DueInDays < 0 {
				return fmt.Errorf("event %s task %s has negative due_in_days", def.EventType, tpl.TaskType)
			}
			if err := validateTarget(tpl.AssignTo); err != nil {
				return fmt.Errorf("event %s task %s: %w", def.EventType, tpl.TaskType, err)
			}
			if err := validateConditions(tpl.Conditions); err != nil {
				return fmt.Errorf("event %s task %s: %w", def.EventType, tpl.TaskType, err)
			}
		}
		for i, tpl := range def.Notifications {
			if tpl.Template == "" {
				return fmt.Errorf("event %s notification %d has empty template", def.EventType, i)
			}
			if len(tpl.Channels) == 0 {
				return fmt.Errorf("event %s notification %s has no channels", def.EventType, tpl.Template)
			}
			for _, ch := range tpl.Channels {
				if !ch.Valid() {
					return fmt.Errorf("event %s notification %s has unknown channel %q", def.EventType, tpl.Template, ch)
				}
			}
			if len(tpl.Recipients) == 0 {
				return fmt.Errorf("event %s notification %s has no recipients", def.EventType, tpl.Template)
			}
			for _, r := range tpl.Recipients {
				if err := validateTarget(r); err != nil {
					return fmt.Errorf("event %s notification %s: %w", def.EventType, tpl.Template, err)
				}
			}
			if err := validateConditions(tpl.Conditions); err != nil {
				return fmt.Errorf("event %s notification %s: %w", def.EventType, tpl.Template, err)
			}
		}
		if def.Retention.Days < 0 {
			return fmt.Errorf("event %s has negative retention days", def.EventType)
		}
	}
	seenRoles := make(map[string]bool, len(c.Roles))
	for _, p := range c.Roles {
		if p.Role == "" {
			return fmt.Errorf("role profile with empty role id")
		}
		if seenRoles[p.Role] {
			return fmt.Errorf("duplicate role profile %s", p.Role)
		}
		seenRoles[p.Role] = true
		for _, cap := range p.TaskCapabilities {
			if cap.EventType == "" {
				return fmt.Errorf("role %s has capability with empty event_type", p.Role)
			}
			if !declared[cap.EventType] {
				return fmt.Errorf("role %s references unknown event type %s", p.Role, cap.EventType)
			}
			for _, t := range cap.TaskTypes {
				if t == "" {
					return fmt.Errorf("role %s capability %s has empty task type", p.Role, cap.EventType)
				}
			}
		}
		for _, a := range p.ApprovalAuthorities {
			if a.Type == "" {
				return fmt.Errorf("role %s has approval authority with empty type", p.Role)
			}
			if a.MaxAmount != nil && *a.MaxAmount < 0 {
				return fmt.Errorf("role %s authority %s has negative max_amount", p.Role, a.Type)
			}
		}
	}
	for _, w := range c.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("webhook with empty name")
		}
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", w.Name, w.URL)
		}
		for _, e := range w.Events {
			if e == "" {
				return fmt.Errorf("webhook %s has empty event filter entry", w.Name)
			}
		}
	}
	return nil
}

// validateTarget checks an assignment target. Fallbacks are single level and
// only meaningful on role and department primaries, where holder resolution
// can come back empty.
func validateTarget(t catalog.AssignTarget) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown assignment kind %q", t.Kind)
	}
	switch t.Kind {
	case catalog.TargetRole, catalog.TargetDepartment, catalog.TargetUser:
		if t.Value == "" {
			return fmt.Errorf("assignment kind %s requires a value", t.Kind)
		}
	}
	if t.Fallback != nil {
		if t.Kind != catalog.TargetRole && t.Kind != catalog.TargetDepartment {
			return fmt.Errorf("fallback declared on %s target, only role and department primaries use one", t.Kind)
		}
		if t.Fallback.Fallback != nil {
			return fmt.Errorf("fallback targets cannot declare their own fallback")
		}
		if !t.Fallback.Kind.Valid() {
			return fmt.Errorf("unknown fallback kind %q", t.Fallback.Kind)
		}
		switch t.Fallback.Kind {
		case catalog.TargetRole, catalog.TargetDepartment, catalog.TargetUser:
			if t.Fallback.Value == "" {
				return fmt.Errorf("fallback kind %s requires a value", t.Fallback.Kind)
			}
		}
	}
	return nil
}

func validateConditions(conds []catalog.Condition) error {
	for _, cond := range conds {
		if cond.Field == "" {
			return fmt.Errorf("condition with empty field")
		}
		if !cond.Operator.Valid() {
			return fmt.Errorf("condition on %s has unknown operator %q", cond.Field, cond.Operator)
		}
		if cond.Operator == catalog.OpIn {
			if _, ok := cond.Value.([]any); !ok {
				return fmt.Errorf("condition on %s: in operator requires a list value", cond.Field)
			}
		}
		if cond.Operator == catalog.OpExists && cond.Value != nil {
			if _, ok := cond.Value.(bool); !ok {
				return fmt.Errorf("condition on %s: exists operator takes a boolean value", cond.Field)
			}
		}
	}
	return nil
}

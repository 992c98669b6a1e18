// Package catalog holds the business event registry: one declarative record
// per event type describing its payload contract, the tasks and notifications
// it raises, and its retention policy. The registry is compiled once at
// startup and never mutated afterwards.
package catalog

type Category string

const (
	CategoryCustomer   Category = "customer"
	CategoryFinancial  Category = "financial"
	CategoryHR         Category = "hr"
	CategoryProduction Category = "production"
	CategoryStrategic  Category = "strategic"
)

var Categories = []Category{CategoryCustomer, CategoryFinancial, CategoryHR, CategoryProduction, CategoryStrategic}

func (c Category) Valid() bool {
	switch c {
	case CategoryCustomer, CategoryFinancial, CategoryHR, CategoryProduction, CategoryStrategic:
		return true
	}
	return false
}

// Operator is the closed set of comparisons a template condition may use.
type Operator string

const (
	OpExists Operator = "exists"
	OpEq     Operator = "eq"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
)

var Operators = []Operator{OpExists, OpEq, OpGt, OpGte, OpLt, OpLte, OpIn}

func (o Operator) Valid() bool {
	switch o {
	case OpExists, OpEq, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Priority ranks derived tasks, P0 highest.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
)

func (p Priority) Valid() bool {
	return p == PriorityP0 || p == PriorityP1 || p == PriorityP2
}

// Rank returns the ordinal position, 0 for P0. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	}
	return 3
}

type TargetKind string

const (
	TargetRole       TargetKind = "role"
	TargetDepartment TargetKind = "department"
	TargetManager    TargetKind = "manager"
	TargetUser       TargetKind = "user"
	TargetCreator    TargetKind = "creator"
)

func (k TargetKind) Valid() bool {
	switch k {
	case TargetRole, TargetDepartment, TargetManager, TargetUser, TargetCreator:
		return true
	}
	return false
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelInApp, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Condition is a single {field, operator, value} predicate. All conditions on
// a template must hold for the template to fire.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator" enum:"exists,eq,gt,gte,lt,lte,in"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`
}

// AssignTarget names who should receive a task or notification. Resolution to
// a concrete person is deferred to the directory; Fallback is consulted only
// when Kind is role or department and the primary has no holder.
type AssignTarget struct {
	Kind     TargetKind    `yaml:"kind" json:"kind" enum:"role,department,manager,user,creator"`
	Value    string        `yaml:"value,omitempty" json:"value,omitempty"`
	Fallback *AssignTarget `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// TaskTemplate conditionally derives one work item from an event occurrence.
// Title and Description may carry {{payload.field}} placeholders.
type TaskTemplate struct {
	TaskType    string       `yaml:"task_type" json:"task_type"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    Priority     `yaml:"priority" json:"priority" enum:"P0,P1,P2"`
	DueInDays   int          `yaml:"due_in_days,omitempty" json:"due_in_days,omitempty"`
	AssignTo    AssignTarget `yaml:"assign_to" json:"assign_to"`
	Conditions  []Condition  `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// NotificationTemplate conditionally raises an alert. Template names a message
// template rendered by a downstream consumer; nothing is interpolated here.
type NotificationTemplate struct {
	Template   string         `yaml:"template" json:"template"`
	Channels   []Channel      `yaml:"channels" json:"channels"`
	Recipients []AssignTarget `yaml:"recipients" json:"recipients"`
	Conditions []Condition    `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

type Property struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema is the payload contract. Only Required is enforced; Properties is
// informational metadata exposed through the API.
type Schema struct {
	Required   []string            `yaml:"required,omitempty" json:"required,omitempty"`
	Properties map[string]Property `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Source lists the origin and module tags allowed to raise this event.
// Metadata only, not enforced.
type Source struct {
	Origins []string `yaml:"origins,omitempty" json:"origins,omitempty"`
	Modules []string `yaml:"modules,omitempty" json:"modules,omitempty"`
}

// Retention governs how long occurrences of this event are kept. Zero days
// means keep forever. Archive copies rows aside before deletion.
type Retention struct {
	Days    int  `yaml:"days,omitempty" json:"days"`
	Archive bool `yaml:"archive,omitempty" json:"archive"`
}

type EventDefinition struct {
	EventType     string                 `yaml:"event_type" json:"event_type"`
	Category      Category               `yaml:"category" json:"category" enum:"customer,financial,hr,production,strategic"`
	Source        Source                 `yaml:"source,omitempty" json:"source"`
	Schema        Schema                 `yaml:"schema,omitempty" json:"schema"`
	Tasks         []TaskTemplate         `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Notifications []NotificationTemplate `yaml:"notifications,omitempty" json:"notifications,omitempty"`
	Retention     Retention              `yaml:"retention,omitempty" json:"retention"`
	Enabled       *bool                  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled treats an absent enabled flag as true.
func (e EventDefinition) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Catalog is the compiled registry. Lookups are by exact, case-sensitive
// event type; declaration order is preserved by every listing.
type Catalog struct {
	defs  []EventDefinition
	index map[string]int
}

// New compiles definitions into a registry. Duplicate event types keep the
// first declaration; uniqueness is enforced by config validation upstream.
func New(defs []EventDefinition) *Catalog {
	c := &Catalog{defs: make([]EventDefinition, 0, len(defs)), index: make(map[string]int, len(defs))}
	for _, def := range defs {
		if _, ok := c.index[def.EventType]; ok {
			continue
		}
		c.index[def.EventType] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c
}

// Definition returns the enabled definition for eventType. Disabled or
// undeclared types miss; an unknown type is not an error at this layer.
func (c *Catalog) Definition(eventType string) (EventDefinition, bool) {
	i, ok := c.index[eventType]
	if !ok || !c.defs[i].IsEnabled() {
		return EventDefinition{}, false
	}
	return c.defs[i], true
}

// Declared returns the definition regardless of the enabled flag.
func (c *Catalog) Declared(eventType string) (EventDefinition, bool) {
	i, ok := c.index[eventType]
	if !ok {
		return EventDefinition{}, false
	}
	return c.defs[i], true
}

// ByCategory returns enabled definitions in declaration order.
func (c *Catalog) ByCategory(cat Category) []EventDefinition {
	var out []EventDefinition
	for _, def := range c.defs {
		if def.Category == cat && def.IsEnabled() {
			out = append(out, def)
		}
	}
	return out
}

// EnabledTypes returns the event types with enabled == true in declaration order.
func (c *Catalog) EnabledTypes() []string {
	var out []string
	for _, def := range c.defs {
		if def.IsEnabled() {
			out = append(out, def.EventType)
		}
	}
	return out
}

// Definitions returns every declared definition, disabled included, in order.
func (c *Catalog) Definitions() []EventDefinition {
	out := make([]EventDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Len() int { return len(c.defs) }

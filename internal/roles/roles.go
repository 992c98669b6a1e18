// Package roles models role capability profiles and answers whether a role
// may initiate, execute, approve or delegate work for a given event type.
// Pure lookups over in-memory data; profiles are loaded from tenant
// configuration and never mutated here.
package roles

// TaskCapability declares what a role may do with the tasks of one event type.
type TaskCapability struct {
	EventType   string   `yaml:"event_type" json:"event_type"`
	TaskTypes   []string `yaml:"task_types,omitempty" json:"task_types,omitempty"`
	CanInitiate bool     `yaml:"can_initiate,omitempty" json:"can_initiate"`
	CanExecute  bool     `yaml:"can_execute,omitempty" json:"can_execute"`
	CanApprove  bool     `yaml:"can_approve,omitempty" json:"can_approve"`
	CanDelegate bool     `yaml:"can_delegate,omitempty" json:"can_delegate"`
}

// ApprovalAuthority grants sign-off power of one type, optionally capped.
// A nil MaxAmount means no recorded limit, conventionally unlimited.
type ApprovalAuthority struct {
	Type          string `yaml:"type" json:"type"`
	CanApproveFor string `yaml:"can_approve_for,omitempty" json:"can_approve_for,omitempty"`
	MaxAmount     *int64 `yaml:"max_amount,omitempty" json:"max_amount,omitempty"`
}

type Profile struct {
	Role                string              `yaml:"role" json:"role"`
	Name                string              `yaml:"name,omitempty" json:"name,omitempty"`
	Department          string              `yaml:"department,omitempty" json:"department,omitempty"`
	TaskCapabilities    []TaskCapability    `yaml:"task_capabilities,omitempty" json:"task_capabilities,omitempty"`
	ApprovalAuthorities []ApprovalAuthority `yaml:"approval_authorities,omitempty" json:"approval_authorities,omitempty"`
}

// CanHandleEvent reports whether any capability entry names eventType.
func (p Profile) CanHandleEvent(eventType string) bool {
	for _, c := range p.TaskCapabilities {
		if c.EventType == eventType {
			return true
		}
	}
	return false
}

func (p Profile) CanInitiateEvent(eventType string) bool {
	for _, c := range p.TaskCapabilities {
		if c.EventType == eventType && c.CanInitiate {
			return true
		}
	}
	return false
}

// CanExecuteTask reports whether a capability entry for eventType lists
// taskType and carries the execute flag. Duplicate entries for one event type
// are unioned: any matching entry grants.
func (p Profile) CanExecuteTask(eventType, taskType string) bool {
	return p.taskFlag(eventType, taskType, func(c TaskCapability) bool { return c.CanExecute })
}

func (p Profile) CanApproveTask(eventType, taskType string) bool {
	return p.taskFlag(eventType, taskType, func(c TaskCapability) bool { return c.CanApprove })
}

func (p Profile) CanDelegateTask(eventType, taskType string) bool {
	return p.taskFlag(eventType, taskType, func(c TaskCapability) bool { return c.CanDelegate })
}

func (p Profile) taskFlag(eventType, taskType string, flag func(TaskCapability) bool) bool {
	for _, c := range p.TaskCapabilities {
		if c.EventType != eventType || !flag(c) {
			continue
		}
		for _, t := range c.TaskTypes {
			if t == taskType {
				return true
			}
		}
	}
	return false
}

func (p Profile) HasAuthority(authorityType string) bool {
	for _, a := range p.ApprovalAuthorities {
		if a.Type == authorityType {
			return true
		}
	}
	return false
}

// ApprovalLimit returns the recorded cap for an authority type. The second
// return is false when the role holds no such authority at all; a nil limit
// with true means unlimited.
func (p Profile) ApprovalLimit(authorityType string) (*int64, bool) {
	for _, a := range p.ApprovalAuthorities {
		if a.Type == authorityType {
			return a.MaxAmount, true
		}
	}
	return nil, false
}

// CanApproveAmount reports whether the role holds the authority and the
// amount falls within its limit. A nil limit passes any amount.
func (p Profile) CanApproveAmount(authorityType string, amount int64) bool {
	limit, ok := p.ApprovalLimit(authorityType)
	if !ok {
		return false
	}
	return limit == nil || amount <= *limit
}

// Roleset is an ordered collection of profiles keyed by role id.
type Roleset struct {
	profiles []Profile
	index    map[string]int
}

// NewRoleset keeps the first profile per role id; uniqueness is enforced by
// config validation upstream.
func NewRoleset(profiles []Profile) *Roleset {
	r := &Roleset{profiles: make([]Profile, 0, len(profiles)), index: make(map[string]int, len(profiles))}
	for _, p := range profiles {
		if _, ok := r.index[p.Role]; ok {
			continue
		}
		r.index[p.Role] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}
	return r
}

func (r *Roleset) Profile(role string) (Profile, bool) {
	i, ok := r.index[role]
	if !ok {
		return Profile{}, false
	}
	return r.profiles[i], true
}

// Roles returns role ids in declaration order.
func (r *Roleset) Roles() []string {
	out := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = p.Role
	}
	return out
}

func (r *Roleset) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

func (r *Roleset) Len() int { return len(r.profiles) }

// Package dispatch derives concrete task and notification instances from a
// validated event occurrence by evaluating the catalog's conditional
// templates. Derivation is pure: all inputs arrive as arguments and the
// outputs are plain data for the caller to persist or hand off.
package dispatch

import (
	"fmt"
	"time"

	"dawin/internal/catalog"
)

// Occurrence is one instance of a business event.
type Occurrence struct {
	EventType  string
	Payload    map[string]any
	OccurredAt time.Time
	ActorID    string
}

// Assignment is a resolved assignment target. Kind tells the collaborator how
// to read Value: a role or department tag still to be staffed, or a concrete
// user id for user, creator and manager (where Value names the subject whose
// manager should receive the work).
type Assignment struct {
	Kind  catalog.TargetKind `json:"kind"`
	Value string             `json:"value,omitempty"`
	// FellBack is set when the declared fallback target was used because the
	// primary role or department had no holder.
	FellBack bool `json:"fell_back,omitempty"`
	// Unassignable is set when the primary and any fallback both failed to
	// resolve. The task is still produced; callers surface it, never drop it.
	Unassignable bool   `json:"unassignable,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Task is a derived work item.
type Task struct {
	TaskType    string
	Title       string
	Description string
	Priority    catalog.Priority
	DueAt       time.Time
	Assign      Assignment
}

// Notification is a derived alert. Rendering of the named template happens
// downstream.
type Notification struct {
	Template   string
	Channels   []catalog.Channel
	Recipients []Assignment
}

type Result struct {
	Tasks         []Task
	Notifications []Notification
}

// HolderDirectory reports whether a role or department currently has anyone
// staffed. A nil directory means every target is assumed to have holders.
type HolderDirectory interface {
	HasHolders(kind catalog.TargetKind, value string) bool
}

type Deriver struct {
	Catalog   *catalog.Catalog
	Directory HolderDirectory
}

func New(c *catalog.Catalog, dir HolderDirectory) Deriver {
	return Deriver{Catalog: c, Directory: dir}
}

// Derive evaluates every task and notification template of the occurrence's
// event type in declared order and returns the instances whose conditions
// hold. An event type missing from the catalog yields an empty result;
// callers validate first. Templates are independent: an unassignable task
// never blocks later templates.
func (d Deriver) Derive(occ Occurrence) Result {
	def, ok := d.Catalog.Definition(occ.EventType)
	if !ok {
		return Result{}
	}
	var res Result
	for _, tpl := range def.Tasks {
		if !Eval(tpl.Conditions, occ.Payload) {
			continue
		}
		res.Tasks = append(res.Tasks, Task{
			TaskType:    tpl.TaskType,
			Title:       Interpolate(tpl.Title, occ.Payload),
			Description: Interpolate(tpl.Description, occ.Payload),
			Priority:    tpl.Priority,
			DueAt:       occ.OccurredAt.Add(time.Duration(tpl.DueInDays) * 24 * time.Hour),
			Assign:      d.resolveAssign(tpl.AssignTo, occ),
		})
	}
	for _, tpl := range def.Notifications {
		if !Eval(tpl.Conditions, occ.Payload) {
			continue
		}
		n := Notification{
			Template: tpl.Template,
			Channels: append([]catalog.Channel(nil), tpl.Channels...),
		}
		for _, r := range tpl.Recipients {
			n.Recipients = append(n.Recipients, d.resolveAssign(r, occ))
		}
		res.Notifications = append(res.Notifications, n)
	}
	return res
}

// resolveAssign concretizes a target. Role and department are checked for
// holders; when the primary is empty the single declared fallback is used,
// and when that fails too the assignment is marked unassignable.
func (d Deriver) resolveAssign(t catalog.AssignTarget, occ Occurrence) Assignment {
	primary := d.concretize(t, occ)
	if !needsStaffing(t.Kind) || d.hasHolders(t.Kind, primary.Value) {
		return primary
	}
	if t.Fallback == nil {
		primary.Unassignable = true
		primary.Reason = fmt.Sprintf("no holder for %s %q and no fallback declared", t.Kind, primary.Value)
		return primary
	}
	fb := d.concretize(*t.Fallback, occ)
	if !needsStaffing(fb.Kind) || d.hasHolders(fb.Kind, fb.Value) {
		fb.FellBack = true
		return fb
	}
	primary.Unassignable = true
	primary.Reason = fmt.Sprintf("no holder for %s %q or fallback %s %q", t.Kind, primary.Value, fb.Kind, fb.Value)
	return primary
}

// concretize substitutes what can be known at derivation time: the creator
// sentinel becomes the event actor, and user/manager values get placeholder
// interpolation. A manager target with an empty value means the actor's own
// manager.
func (d Deriver) concretize(t catalog.AssignTarget, occ Occurrence) Assignment {
	a := Assignment{Kind: t.Kind, Value: t.Value}
	switch t.Kind {
	case catalog.TargetUser:
		a.Value = Interpolate(t.Value, occ.Payload)
	case catalog.TargetManager:
		a.Value = Interpolate(t.Value, occ.Payload)
		if a.Value == "" {
			a.Value = occ.ActorID
		}
	case catalog.TargetCreator:
		a.Value = occ.ActorID
	}
	return a
}

func (d Deriver) hasHolders(kind catalog.TargetKind, value string) bool {
	if d.Directory == nil {
		return true
	}
	return d.Directory.HasHolders(kind, value)
}

func needsStaffing(kind catalog.TargetKind) bool {
	return kind == catalog.TargetRole || kind == catalog.TargetDepartment
}

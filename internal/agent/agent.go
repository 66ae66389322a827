// ABOUTME: Core Agent entity with status, class, hierarchy, and resource accounting.
// ABOUTME: Defines the enumerations shared by every orchestration component.

package agent

import (
	"time"
)

// Status describes what an agent is currently doing, as far as the
// orchestrator knows. Reconciliation may rewrite it when the declared
// status drifts from OS reality.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusWorking           Status = "working"
	StatusWaiting           Status = "waiting"
	StatusWaitingPermission Status = "waiting_permission"
	StatusError             Status = "error"
	StatusOffline           Status = "offline"
	StatusOrphaned          Status = "orphaned"
)

// Class is the role tag assigned at spawn time. ClassBoss agents route
// commands to subordinates instead of acting directly.
type Class string

const (
	ClassBoss       Class = "boss"
	ClassBuilder    Class = "builder"
	ClassReviewer   Class = "reviewer"
	ClassResearcher Class = "researcher"
	ClassGeneralist Class = "generalist"
)

// ValidClass reports whether c is one of the known agent classes.
func ValidClass(c Class) bool {
	switch c {
	case ClassBoss, ClassBuilder, ClassReviewer, ClassResearcher, ClassGeneralist:
		return true
	}
	return false
}

// Agent is one supervised worker backed by an external coding-assistant
// process. All fields are owned by the Roster; components read and write
// them only through Roster accessors.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Class    Class  `json:"class"`
	Provider string `json:"provider"`

	Status      Status `json:"status"`
	SessionID   string `json:"sessionId,omitempty"`
	IsDetached  bool   `json:"isDetached"`
	CurrentTask string `json:"currentTask,omitempty"`
	CurrentTool string `json:"currentTool,omitempty"`

	LastAssignedTask string    `json:"lastAssignedTask,omitempty"`
	LastAssignedAt   time.Time `json:"lastAssignedAt,omitzero"`
	TaskCount        int       `json:"taskCount"`

	BossID         string   `json:"bossId,omitempty"`
	SubordinateIDs []string `json:"subordinateIds,omitempty"`

	ContextUsed  int `json:"contextUsed"`
	ContextLimit int `json:"contextLimit"`

	WorkingDir string `json:"workingDir"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the agent, safe to hand to observers.
func (a *Agent) Clone() *Agent {
	cp := *a
	if a.SubordinateIDs != nil {
		cp.SubordinateIDs = append([]string(nil), a.SubordinateIDs...)
	}
	return &cp
}

// IsBoss reports whether the agent routes work to subordinates.
func (a *Agent) IsBoss() bool {
	return a.Class == ClassBoss
}

package model

import "context"

// TaskKind names the inbound operation a task carries.
type TaskKind string

// Task kinds.
const (
	TaskEvent    TaskKind = "event"
	TaskLocation TaskKind = "location"
	TaskManual   TaskKind = "manual"
	TaskSafe     TaskKind = "safe"
	TaskRespond  TaskKind = "respond"
	TaskLeave    TaskKind = "leave"
)

// Task is a unit of per-subject work flowing through the queue. Tasks with
// the same SubjectID are executed in submission order.
type Task struct {
	ID        string
	SubjectID string
	Kind      TaskKind
	// ConnID is the originating connection, if any; failures are reported
	// back to it only.
	ConnID string
	Exec   func(ctx context.Context) error
	// Done, when non-nil, receives the Exec result. It must be buffered.
	Done chan error
}

package protocol

import "sync"

// PoeBot is the process-local configuration of one bot mounted by the
// dispatcher: its path, its access key (if any), and the two attachment
// flags from the data model.
type PoeBot struct {
	Path                        string
	AccessKey                   string
	AllowWithoutKey             bool
	ShouldInsertAttachmentMessages bool
	// ConcatAttachmentsToMessage deprecated: superseded by
	// ShouldInsertAttachmentMessages, which wins when both are set.
	ConcatAttachmentsToMessage bool

	// Attachments tracks this bot's in-flight upload tasks per message_id.
	// Handlers schedule uploads against it; the dispatcher awaits and
	// drains the request's entry before the stream's done event.
	Attachments *PendingAttachmentTable
}

// AttachmentTask is one in-flight upload scheduled against a message.
type AttachmentTask struct {
	InlineRef     string
	AttachmentURL string
	Err           error
	Done          chan struct{}
}

// NewAttachmentTask returns a task with its Done channel initialized.
func NewAttachmentTask() *AttachmentTask {
	return &AttachmentTask{Done: make(chan struct{})}
}

// PendingAttachmentTable tracks, per message_id, the multiset of in-flight
// upload tasks scheduled while a query response is being produced. An
// entry's lifetime never exceeds the query response it belongs to: it is
// created on first upload for a message and drained when that response
// ends.
//
// Mutated only by the owning request: append on schedule, drain on
// response end.
type PendingAttachmentTable struct {
	mu    sync.Mutex
	tasks map[string][]*AttachmentTask
}

// NewPendingAttachmentTable returns an empty table.
func NewPendingAttachmentTable() *PendingAttachmentTable {
	return &PendingAttachmentTable{tasks: make(map[string][]*AttachmentTask)}
}

// Schedule registers a new upload task against messageID and returns it.
func (t *PendingAttachmentTable) Schedule(messageID string) *AttachmentTask {
	task := NewAttachmentTask()
	t.mu.Lock()
	t.tasks[messageID] = append(t.tasks[messageID], task)
	t.mu.Unlock()
	return task
}

// Drain removes and returns all tasks scheduled against messageID. Callers
// await each task's Done channel; the entry is gone from the table the
// moment Drain returns, whether or not the tasks themselves have finished.
func (t *PendingAttachmentTable) Drain(messageID string) []*AttachmentTask {
	t.mu.Lock()
	tasks := t.tasks[messageID]
	delete(t.tasks, messageID)
	t.mu.Unlock()
	return tasks
}

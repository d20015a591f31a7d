// Package task implements the TaskManager and cooperative scheduler
// described in section 4.6: a circular doubly linked list of tasks, each
// owning a distinct page-table root, with round-robin selection driven by
// the periodic timer every tenth tick.
package task

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
)

var (
	errInvalidContext = &kernel.Error{Module: "task", Message: "context has a null cr3, ip or sp", Kind: kernel.KindInvalidParameter}
	errNotFound       = &kernel.Error{Module: "task", Message: "no task with this id", Kind: kernel.KindNotFound}
	errLastTask       = &kernel.Error{Module: "task", Message: "refusing to remove the last remaining task", Kind: kernel.KindInvalidParameter}
)

// Context is the architectural state a task resumes from: its address
// space root and the instruction/stack pointers captured on its last
// suspension (or initial entry, if it has never yet run).
type Context struct {
	CR3 uintptr
	IP  uintptr
	SP  uintptr
}

func (c Context) valid() bool {
	return c.CR3 != 0 && c.IP != 0 && c.SP != 0
}

// Task is one entry of the TaskManager's ring. ID is monotonically
// increasing and never reused while the kernel is up; 0 is the invalid/
// none sentinel.
type Task struct {
	ID        uint64
	Blockable bool
	blocked   bool
	prev      *Task
	next      *Task
	Context   Context
}

// Blocked reports whether this task is currently excluded from round-robin
// selection.
func (t *Task) Blocked() bool { return t.blocked }

// Manager is the TaskManager described in section 4.6: a circular doubly
// linked list with a head pointer, a running task count, a running switch
// count, and the spinlock documented in section 5 protecting every list
// mutation.
type Manager struct {
	mu          sync.Spinlock
	head        *Task
	count       uint64
	nextID      uint64
	switches    uint64
	tickCounter uint64
}

// New returns an empty Manager. The first AddTask call becomes the head.
func New() *Manager {
	return &Manager{}
}

// Count returns the current number of tasks in the ring.
func (m *Manager) Count() uint64 {
	m.mu.Acquire()
	defer m.mu.Release()
	return m.count
}

// Switches returns the running count of context switches performed by
// Dispatch.
func (m *Manager) Switches() uint64 {
	m.mu.Acquire()
	defer m.mu.Release()
	return m.switches
}

// AddTask allocates a Task for ctx, rejecting a context with a null
// cr3/ip/sp, splices it in as the new tail of the ring, and returns its
// id.
func (m *Manager) AddTask(ctx Context, blockable bool) (uint64, *kernel.Error) {
	if !ctx.valid() {
		return 0, errInvalidContext
	}

	m.mu.Acquire()
	defer m.mu.Release()

	m.nextID++
	t := &Task{ID: m.nextID, Blockable: blockable, Context: ctx}

	if m.head == nil {
		t.next = t
		t.prev = t
		m.head = t
	} else {
		tail := m.head.prev
		tail.next = t
		t.prev = tail
		t.next = m.head
		m.head.prev = t
	}
	m.count++

	return t.ID, nil
}

// RemoveTask splices the task with the given id out of the ring and frees
// it. It refuses to remove the last remaining task.
func (m *Manager) RemoveTask(id uint64) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()

	if m.count <= 1 {
		if m.findLocked(id) != nil {
			return errLastTask
		}
		return errNotFound
	}

	t := m.findLocked(id)
	if t == nil {
		return errNotFound
	}

	t.prev.next = t.next
	t.next.prev = t.prev
	if m.head == t {
		m.head = t.next
	}
	t.next, t.prev = nil, nil
	m.count--

	return nil
}

// BlockTask marks a task as blocked, excluding it from round-robin
// selection until UnblockTask is called for it.
func (m *Manager) BlockTask(id uint64) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()
	t := m.findLocked(id)
	if t == nil {
		return errNotFound
	}
	t.blocked = true
	return nil
}

// UnblockTask clears a task's blocked flag, making it eligible for
// selection again.
func (m *Manager) UnblockTask(id uint64) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()
	t := m.findLocked(id)
	if t == nil {
		return errNotFound
	}
	t.blocked = false
	return nil
}

// CurrentID returns the id of the task currently at the head of the ring,
// or 0 if the manager has no tasks.
func (m *Manager) CurrentID() uint64 {
	m.mu.Acquire()
	defer m.mu.Release()
	if m.head == nil {
		return 0
	}
	return m.head.ID
}

func (m *Manager) findLocked(id uint64) *Task {
	if m.head == nil {
		return nil
	}
	t := m.head
	for {
		if t.ID == id {
			return t
		}
		t = t.next
		if t == m.head {
			return nil
		}
	}
}

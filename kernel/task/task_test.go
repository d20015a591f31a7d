package task

import "testing"

func validCtx(cr3 uintptr) Context {
	return Context{CR3: cr3, IP: 0x1000, SP: 0x2000}
}

func TestAddTaskRejectsInvalidContext(t *testing.T) {
	m := New()
	if _, err := m.AddTask(Context{}, true); err == nil {
		t.Fatalf("expected an error for a context with null cr3/ip/sp")
	}
}

func TestAddTaskAssignsIncreasingIDs(t *testing.T) {
	m := New()
	a, err := m.AddTask(validCtx(1), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := m.AddTask(validCtx(2), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == 0 || b == 0 || a == b || b < a {
		t.Fatalf("expected strictly increasing nonzero ids; got a=%d b=%d", a, b)
	}
}

func TestRemoveTaskRefusesToRemoveTheLastTask(t *testing.T) {
	m := New()
	id, _ := m.AddTask(validCtx(1), true)
	if err := m.RemoveTask(id); err == nil {
		t.Fatalf("expected an error removing the only remaining task")
	}
	if m.Count() != 1 {
		t.Fatalf("expected the task to still be present")
	}
}

func TestRemoveTaskUnknownIDFails(t *testing.T) {
	m := New()
	m.AddTask(validCtx(1), true)
	if err := m.RemoveTask(999); err == nil {
		t.Fatalf("expected an error removing an unknown id")
	}
}

func TestBlockedTaskNeverSelected(t *testing.T) {
	m := New()
	a, _ := m.AddTask(validCtx(1), true)
	b, _ := m.AddTask(validCtx(2), true)
	m.BlockTask(b)

	for i := 0; i < 3*rescheduleEveryMillis; i++ {
		m.Dispatch(nil, 0)
		if m.CurrentID() == b {
			t.Fatalf("blocked task %d must never be selected", b)
		}
	}
	if m.CurrentID() != a {
		t.Fatalf("expected the only runnable task %d to remain selected; got %d", a, m.CurrentID())
	}
}

// TestRoundRobinFairness exercises property test 5 / SC-3: over k*N ticks
// with N runnable tasks and no blocking, each task is observed at the
// head at least k-1 times and at most k+1 times.
func TestRoundRobinFairness(t *testing.T) {
	m := New()
	const n = 3
	ids := make([]uint64, n)
	for i := range ids {
		id, err := m.AddTask(validCtx(uintptr(i+1)), true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids[i] = id
	}

	const k = 1000
	counts := make(map[uint64]int)
	for tick := 0; tick < k*n*rescheduleEveryMillis; tick++ {
		m.Dispatch(nil, 0)
		counts[m.CurrentID()]++
	}

	total := 0
	for _, id := range ids {
		c := counts[id]
		total += c
		if c < (k-1)*rescheduleEveryMillis || c > (k+1)*rescheduleEveryMillis {
			t.Fatalf("task %d observed as current %d ticks; expected within one reschedule period of %d*%d", id, c, k, rescheduleEveryMillis)
		}
	}
}

func TestDispatchOnlyReschedulesEveryTenthTick(t *testing.T) {
	m := New()
	a, _ := m.AddTask(validCtx(1), true)
	m.AddTask(validCtx(2), true)

	for i := 0; i < rescheduleEveryMillis-1; i++ {
		if r := m.Dispatch(nil, 0); r != nil {
			t.Fatalf("expected no reschedule before the tenth tick; got one at tick %d", i)
		}
	}
	if m.CurrentID() != a {
		t.Fatalf("expected no switch yet")
	}
	if r := m.Dispatch(nil, 0); r == nil {
		t.Fatalf("expected a reschedule on the tenth tick")
	}
}

func TestDispatchInvokesTickEveryCall(t *testing.T) {
	m := New()
	m.AddTask(validCtx(1), true)

	calls := 0
	for i := 0; i < 5; i++ {
		m.Dispatch(func() { calls++ }, 0)
	}
	if calls != 5 {
		t.Fatalf("expected tick to run on every Dispatch call; got %d calls for 5 invocations", calls)
	}
}

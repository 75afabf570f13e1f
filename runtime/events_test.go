package runtime

import (
	"container/heap"
	"testing"
)

func TestEventQueueOrdersByTimeThenArrival(t *testing.T) {
	var q eventQueue
	heap.Init(&q)

	var fired []string
	push := func(at float64, name string) {
		heap.Push(&q, &Event{Time: at, seq: len(fired) + len(q), Fire: func() { fired = append(fired, name) }})
	}

	push(2, "b")
	push(1, "a")
	push(1, "c")

	for q.Len() > 0 {
		ev := heap.Pop(&q).(*Event)
		ev.Fire()
	}

	if got, want := len(fired), 3; got != want {
		t.Fatalf("expected %d events to fire, got %d", want, got)
	}
	if fired[0] != "a" || fired[2] != "b" {
		t.Fatalf("expected earliest time first and latest time last, got %v", fired)
	}
}

func TestScheduleSpikeLatchSetsLatchAfterTarget(t *testing.T) {
	s := NewSimulator(NewHolders())

	var order []string
	s.ScheduleSpikeLatch(EventSpikeLatch{
		EventSpike: EventSpike{At: 0.5, Target: func() { order = append(order, "target") }},
		SetLatch:   func() { order = append(order, "latch") },
	})

	s.DrainDue(1)

	if len(order) != 2 || order[0] != "target" || order[1] != "latch" {
		t.Fatalf("expected target to fire before its latch, got %v", order)
	}
}

func TestDrainDueOnlyFiresEventsBeforeDeadline(t *testing.T) {
	s := NewSimulator(NewHolders())

	var fired []float64
	s.Schedule(1, func() { fired = append(fired, 1) })
	s.Schedule(5, func() { fired = append(fired, 5) })

	s.DrainDue(3)

	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("expected only the event before the deadline to fire, got %v", fired)
	}

	s.DrainDue(10)
	if len(fired) != 2 || fired[1] != 5 {
		t.Fatalf("expected the later event to fire once its deadline passed, got %v", fired)
	}
}

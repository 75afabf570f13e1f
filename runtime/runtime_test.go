package runtime

import "testing"

func TestDelayLineReturnsZeroUntilFilled(t *testing.T) {
	var d DelayLine
	for i := 0; i < 3; i++ {
		got := d.Delay(3, float64(i+1))
		if got != 0 {
			t.Errorf("Delay call %d: expected 0 before the line fills, got %v", i, got)
		}
	}
	if got := d.Delay(3, 4); got != 1 {
		t.Errorf("expected the 4th push to return the oldest sample (1), got %v", got)
	}
	if got := d.Delay(3, 5); got != 2 {
		t.Errorf("expected the 5th push to return the 2nd sample (2), got %v", got)
	}
}

func TestInstanceIteratorSkipsFreedSlots(t *testing.T) {
	type instance struct{ id int }
	items := []*instance{{id: 1}, nil, {id: 3}, nil}

	it := NewInstanceIterator(items)
	var ids []int
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		ids = append(ids, v.(*instance).id)
	}

	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected to visit only live instances [1 3], got %v", ids)
	}

	it.Reset()
	v, ok := it.Next()
	if !ok || v.(*instance).id != 1 {
		t.Fatalf("expected Reset to rewind the iterator, got %v, %v", v, ok)
	}
}

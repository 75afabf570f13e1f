package runtime

import "testing"

func TestMatrixAtIndexesRowMajor(t *testing.T) {
	m := NewMatrix([][]float64{
		{1, 2, 3},
		{4, 5, 6},
	})

	if got := m.At(0, 2); got != 3 {
		t.Errorf("At(0,2): expected 3, got %v", got)
	}
	if got := m.At(1, 0); got != 4 {
		t.Errorf("At(1,0): expected 4, got %v", got)
	}
	if got := m.At(5, 5); got != 0 {
		t.Errorf("out-of-bounds At: expected 0, got %v", got)
	}
}

func TestMatrixAtVIndexesFlatOffset(t *testing.T) {
	m := NewMatrix([][]float64{{10}, {20}, {30}})

	if got := m.AtV(1); got != 20 {
		t.Errorf("AtV(1): expected 20, got %v", got)
	}
	if got := m.AtV(-1); got != 0 {
		t.Errorf("negative AtV: expected 0, got %v", got)
	}
}

func TestMatrixSetIgnoresOutOfBounds(t *testing.T) {
	m := NewZeroMatrix(2, 2)
	m.Set(0, 0, 7)
	m.Set(5, 5, 99)

	if got := m.At(0, 0); got != 7 {
		t.Errorf("Set(0,0,7): expected At(0,0)==7, got %v", got)
	}
	if m.Rows() != 2 || m.Cols() != 2 {
		t.Errorf("expected shape to stay 2x2, got %dx%d", m.Rows(), m.Cols())
	}
}

func TestNewMatrixEmptyRows(t *testing.T) {
	m := NewMatrix(nil)
	if m.Rows() != 0 || m.Cols() != 0 {
		t.Errorf("expected a zero-shape matrix from no rows, got %dx%d", m.Rows(), m.Cols())
	}
}

func TestIteratorNonzeroSkipsZeroEntries(t *testing.T) {
	m := NewMatrix([][]float64{
		{0, 1, 0},
		{2, 0, 3},
	})

	it := m.IteratorNonzero()
	var got [][3]float64
	for {
		row, col, value, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, [3]float64{float64(row), float64(col), value})
	}

	want := [][3]float64{{0, 1, 1}, {1, 0, 2}, {1, 2, 3}}
	if len(got) != len(want) {
		t.Fatalf("expected %d nonzero entries, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestIteratorNonzeroOnEmptyMatrix(t *testing.T) {
	m := NewMatrix(nil)
	it := m.IteratorNonzero()
	if _, _, _, ok := it.Next(); ok {
		t.Errorf("expected an empty matrix to report no nonzero entries")
	}
}

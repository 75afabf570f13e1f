package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeHolder struct {
	key    string
	closed *[]string
}

func (f *fakeHolder) Key() string { return f.key }
func (f *fakeHolder) Close() error {
	*f.closed = append(*f.closed, f.key)
	return nil
}

func TestHoldersFinishClosesInReverseOrder(t *testing.T) {
	h := NewHolders()
	var closed []string
	h.Register(&fakeHolder{key: "a", closed: &closed})
	h.Register(&fakeHolder{key: "b", closed: &closed})
	h.Register(&fakeHolder{key: "c", closed: &closed})

	if err := h.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	want := []string{"c", "b", "a"}
	if len(closed) != len(want) {
		t.Fatalf("expected %d closes, got %d: %v", len(want), len(closed), closed)
	}
	for i, k := range want {
		if closed[i] != k {
			t.Errorf("close order[%d]: expected %q, got %q", i, k, closed[i])
		}
	}
}

func TestHoldersSortedKeysIsDeterministic(t *testing.T) {
	h := NewHolders()
	var closed []string
	h.Register(&fakeHolder{key: "b", closed: &closed})
	h.Register(&fakeHolder{key: "a", closed: &closed})

	got := h.sortedKeys()
	want := []string{"a", "b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected sorted keys %v, got %v", want, got)
	}
}

func TestHoldersGetFindsRegistered(t *testing.T) {
	h := NewHolders()
	var closed []string
	fh := &fakeHolder{key: "x", closed: &closed}
	h.Register(fh)

	got, ok := h.Get("x")
	if !ok || got != fh {
		t.Fatalf("expected Get to find the registered holder, got %v, %v", got, ok)
	}
	if _, ok := h.Get("missing"); ok {
		t.Fatalf("expected Get to report false for an unregistered key")
	}
}

func TestOutputHolderWritesTabSeparatedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tsv")

	h, err := OpenOutputHolder(path)
	if err != nil {
		t.Fatalf("OpenOutputHolder: %v", err)
	}
	if err := h.Write(0, []float64{1, 2}, []string{"x", "y"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "$t\tx\ty") {
		t.Errorf("expected a header row with $t and column names, got:\n%s", text)
	}
	if !strings.Contains(text, "0\t1\t2") {
		t.Errorf("expected a data row, got:\n%s", text)
	}

	cols, err := os.ReadFile(path + ".columns")
	if err != nil {
		t.Fatalf("ReadFile .columns: %v", err)
	}
	wantColumns := "N2A.schema=3\n0:x\n scale:1\n1:y\n scale:1\n"
	if string(cols) != wantColumns {
		t.Errorf(".columns content:\ngot:\n%s\nwant:\n%s", string(cols), wantColumns)
	}
}

func TestInputHolderDetectsTabDelimiter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.tsv")
	if err := os.WriteFile(path, []byte("t\tx\n0\t1\n1\t2\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := OpenInputHolder(path, true, false)
	if err != nil {
		t.Fatalf("OpenInputHolder: %v", err)
	}
	defer h.Close()

	if got := h.Get(1, 1); got != 2 {
		t.Errorf("expected row 1 col 1 to be 2, got %v", got)
	}
	if got := h.Get(10, 0); got != 0 {
		t.Errorf("expected out-of-range Get to return 0, got %v", got)
	}
}

func TestInputHolderSmoothModeLinearlyInterpolates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ramp.tsv")
	if err := os.WriteFile(path, []byte("t\tv\n0\t0\n1\t10\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := OpenInputHolder(path, true, true)
	if err != nil {
		t.Fatalf("OpenInputHolder: %v", err)
	}
	defer h.Close()

	if got := h.ValueAt(0.3, 1); got != 3 {
		t.Errorf("expected t=0.3 to interpolate to 3, got %v", got)
	}
	if got := h.ValueAt(0, 1); got != 0 {
		t.Errorf("expected t=0 to read the exact row value 0, got %v", got)
	}
	if got := h.ValueAt(1, 1); got != 10 {
		t.Errorf("expected t=1 to read the exact row value 10, got %v", got)
	}
}

func TestInputHolderWithoutSmoothHoldsPriorRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ramp.tsv")
	if err := os.WriteFile(path, []byte("t\tv\n0\t0\n1\t10\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := OpenInputHolder(path, true, false)
	if err != nil {
		t.Fatalf("OpenInputHolder: %v", err)
	}
	defer h.Close()

	if got := h.ValueAt(0.3, 1); got != 0 {
		t.Errorf("expected non-smooth t=0.3 to snap to the prior row's value 0, got %v", got)
	}
}

func TestReadMatrixCachesByPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.txt")
	if err := os.WriteFile(path, []byte("1 2\n3 4\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := NewHolders()
	m1, err := ReadMatrix(h, path)
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	m2, err := ReadMatrix(h, path)
	if err != nil {
		t.Fatalf("ReadMatrix (cached): %v", err)
	}
	if m1 != m2 {
		t.Errorf("expected the second ReadMatrix to return the cached *Matrix, got a distinct pointer")
	}
	if m1.At(1, 1) != 4 {
		t.Errorf("expected parsed matrix element (1,1) == 4, got %v", m1.At(1, 1))
	}
}

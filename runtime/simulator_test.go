package runtime

import (
	"context"
	"os"
	"testing"
)

func TestRunAdvancesClockInFixedSteps(t *testing.T) {
	s := NewSimulator(NewHolders()).WithDT(0.5)

	var ticks []float64
	err := s.Run(context.Background(), 2, func(now, dt float64) {
		ticks = append(ticks, now)
		if dt != 0.5 {
			t.Fatalf("expected dt 0.5, got %v", dt)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []float64{0, 0.5, 1, 1.5}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %d: %v", len(want), len(ticks), ticks)
	}
	for i, w := range want {
		if ticks[i] != w {
			t.Errorf("tick %d: expected %v, got %v", i, w, ticks[i])
		}
	}
}

func TestRunStopsWhenStopIsCalled(t *testing.T) {
	s := NewSimulator(NewHolders()).WithDT(1)

	count := 0
	err := s.Run(context.Background(), 100, func(now, dt float64) {
		count++
		if count == 3 {
			s.Stop()
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected Run to stop after 3 ticks, got %d", count)
	}
}

func TestRunCancelsOnContext(t *testing.T) {
	s := NewSimulator(NewHolders()).WithDT(1)

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	err := s.Run(ctx, 100, func(now, dt float64) {
		count++
		if count == 2 {
			cancel()
		}
	})
	if err == nil {
		t.Fatalf("expected Run to report the cancellation error")
	}
}

func TestInputSmoothModeComesFromCallSiteArgument(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ramp.tsv"
	if err := os.WriteFile(path, []byte("t\tv\n0\t0\n1\t10\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewSimulator(NewHolders())
	s.now = 0.3
	if got := s.Input(path, 1.0, "smooth"); got != 3 {
		t.Errorf("expected smooth-mode Input at t=0.3 to interpolate to 3, got %v", got)
	}
}

func TestOutputFormatSqliteOpensSQLiteOutputHolder(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.sqlite"

	s := NewSimulator(NewHolders()).WithOutputFormat("sqlite")
	s.Output(path, 1.0, "x")

	buf, ok := s.outputs[path]
	if !ok {
		t.Fatalf("expected an output buffer to be opened for %q", path)
	}
	if _, ok := buf.holder.(*SQLiteOutputHolder); !ok {
		t.Fatalf("expected WithOutputFormat(\"sqlite\") to open a *SQLiteOutputHolder, got %T", buf.holder)
	}
}

func TestQuantizeTimeSnapsToDTGrid(t *testing.T) {
	s := NewSimulator(NewHolders()).WithDT(0.1)

	if got := s.QuantizeTime(0.246); got != 0.2 {
		t.Errorf("QuantizeTime(0.246): expected snap to 0.2, got %v", got)
	}
	if got := s.QuantizeTime(0.25); got != 0.2 && got != 0.3 {
		t.Errorf("QuantizeTime(0.25): expected a tick boundary, got %v", got)
	}
}

func TestOutputBuffersRowsUntilAdvance(t *testing.T) {
	s := NewSimulator(NewHolders())
	path := t.TempDir() + "/out.tsv"

	s.Output(path, 1.0, "x")
	s.Output(path, 2.0, "y")

	buf, ok := s.outputs[path]
	if !ok {
		t.Fatalf("expected an output buffer to be opened for %q", path)
	}
	if len(buf.row) != 2 || buf.row[0] != 1 || buf.row[1] != 2 {
		t.Fatalf("expected the buffered row to hold both columns before a flush, got %v", buf.row)
	}
}

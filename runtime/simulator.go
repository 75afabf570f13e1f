package runtime

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Simulator is the per-run handle a generated program's main() builds and
// passes down through each part's container chain as this.container.
// It owns the event queue, the process-wide I/O holders, and the fixed
// simulated clock; it never calls back into generated Instance/Population
// methods (those are unexported and package-main-local), it only supplies
// the infrastructure main.go's own loop drives them with.
type Simulator struct {
	logger  *slog.Logger
	holders *Holders
	queue   eventQueue
	seq     int
	now     float64
	step    EventStep

	outputs      map[string]*outputBuffer
	inputs       map[string]*InputHolder
	outputFormat string

	stopped bool
}

// Stop sets the cooperative cancellation flag Run checks at the top of
// every tick, the way teacher's Simulator.IsFinished/Cycle polling loop
// checks a stop flag between ticks.
func (s *Simulator) Stop() { s.stopped = true }

// Run drives cycle once per fixed-dt tick from t=0 until until, draining
// any due scheduled events ahead of each tick and flushing buffered output
// afterward. It returns when until is reached, ctx is cancelled, or Stop
// has been called.
func (s *Simulator) Run(ctx context.Context, until float64, cycle func(now, dt float64)) error {
	dt := s.step.Period
	if dt <= 0 {
		dt = 0.01
	}
	for t := 0.0; t < until && !s.stopped; t += dt {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.now = t
		s.DrainDue(t + dt)
		cycle(t, dt)
		s.Advance(t + dt)
	}
	return nil
}

func NewSimulator(holders *Holders) *Simulator {
	return &Simulator{
		logger:  slog.Default(),
		holders: holders,
		step:    EventStep{Period: 0.01},
		outputs: make(map[string]*outputBuffer),
		inputs:  make(map[string]*InputHolder),
	}
}

// WithDT sets the fixed cycle period main.go's loop advances by.
func (s *Simulator) WithDT(dt float64) *Simulator {
	s.step = EventStep{Period: dt}
	return s
}

// WithOutputFormat selects the output backend Output() opens a new path
// against: "sqlite" constructs a SQLiteOutputHolder, anything else (the
// default) the tab-separated OutputHolder, per backend/c/outputFormat.
func (s *Simulator) WithOutputFormat(format string) *Simulator {
	s.outputFormat = format
	return s
}

func (s *Simulator) DT() float64  { return s.step.Period }
func (s *Simulator) Now() float64 { return s.now }

// Schedule enqueues fire to run at time t, FIFO among ties at the same time.
func (s *Simulator) Schedule(t float64, fire func()) {
	s.seq++
	heap.Push(&s.queue, &Event{Time: t, seq: s.seq, Fire: fire})
}

// ScheduleSpike enqueues a one-shot event, the form a fired eventTest's
// eventDelay produces.
func (s *Simulator) ScheduleSpike(ev EventSpike) {
	s.Schedule(ev.At, ev.Target)
}

// ScheduleSpikeLatch is ScheduleSpike plus setting a flag bit on fire, the
// form $type-split and connection-birth events take.
func (s *Simulator) ScheduleSpikeLatch(ev EventSpikeLatch) {
	s.Schedule(ev.At, func() {
		if ev.Target != nil {
			ev.Target()
		}
		if ev.SetLatch != nil {
			ev.SetLatch()
		}
	})
}

// QuantizeTime snaps t to the nearest multiple of the fixed cycle period,
// so a spike an eventDelay computed always lands on a tick boundary rather
// than drifting the clock off its fixed-dt grid.
func (s *Simulator) QuantizeTime(t float64) float64 {
	dt := s.step.Period
	if dt <= 0 {
		return t
	}
	// dividing by 1/dt rather than multiplying by dt gives the exact decimal
	// boundary (3/10 == 0.3, whereas 3*0.1 == 0.30000000000000004).
	return math.Round(t/dt) / (1 / dt)
}

// DrainDue fires every queued event with Time strictly before deadline,
// advancing now to each event's own time as it fires.
func (s *Simulator) DrainDue(deadline float64) {
	for s.queue.Len() > 0 && s.queue[0].Time < deadline {
		ev := heap.Pop(&s.queue).(*Event)
		s.now = ev.Time
		if ev.Fire != nil {
			ev.Fire()
		}
	}
}

// Advance moves the clock to t, the way main.go's loop closes out a cycle
// after DrainDue and the integrate/update/finalize triple.
func (s *Simulator) Advance(t float64) {
	s.now = t
	s.flushOutputs()
}

type outputBuffer struct {
	holder  OutputSink
	columns []string
	seen    map[string]int
	row     []float64
}

// Output records value under column (args[2], default the call's ordinal
// position) into path's buffered row for the current cycle, flushed to
// disk on the next Advance.
func (s *Simulator) Output(args ...any) float64 {
	if len(args) < 2 {
		return 0
	}
	path, _ := args[0].(string)
	value := toFloat(args[1])

	buf, ok := s.outputs[path]
	if !ok {
		holder, err := s.openOutputSink(path)
		if err != nil {
			s.logger.Error("open output", "path", path, "err", err)
			return value
		}
		s.holders.Register(holder)
		buf = &outputBuffer{holder: holder, seen: make(map[string]int)}
		s.outputs[path] = buf
	}

	column := fmt.Sprintf("%d", len(buf.columns))
	if len(args) > 2 {
		if c, ok := args[2].(string); ok && c != "" {
			column = c
		}
	}

	idx, ok := buf.seen[column]
	if !ok {
		idx = len(buf.columns)
		buf.seen[column] = idx
		buf.columns = append(buf.columns, column)
		buf.row = append(buf.row, 0)
	}
	buf.row[idx] = value
	return value
}

// openOutputSink constructs the OutputSink for path per s.outputFormat: the
// default tab-separated OutputHolder, or a SQLiteOutputHolder when the model
// set backend/c/outputFormat=sqlite.
func (s *Simulator) openOutputSink(path string) (OutputSink, error) {
	if s.outputFormat == "sqlite" {
		return OpenSQLiteOutputHolder(path, sqliteTableName(path))
	}
	return OpenOutputHolder(path)
}

func (s *Simulator) flushOutputs() {
	for _, buf := range s.outputs {
		if len(buf.row) == 0 {
			continue
		}
		if err := buf.holder.Write(s.now, buf.row, buf.columns); err != nil {
			s.logger.Error("write output", "key", buf.holder.Key(), "err", err)
		}
	}
}

// Input reads column args[1] (default 0) of path at the current simulated
// time, opening and registering the holder on first use. An optional
// args[2] mode string containing "smooth" enables linear interpolation
// between surrounding rows instead of holding the last row at or before
// the current time.
func (s *Simulator) Input(args ...any) float64 {
	if len(args) < 1 {
		return 0
	}
	path, _ := args[0].(string)
	mode, _ := stringArg(args, 2)
	smooth := strings.Contains(mode, "smooth")

	holder, ok := s.inputs[path]
	if !ok {
		opened, err := OpenInputHolder(path, true, smooth)
		if err != nil {
			s.logger.Error("open input", "path", path, "err", err)
			return 0
		}
		s.holders.Register(opened)
		s.inputs[path] = opened
		holder = opened
	} else if smooth {
		holder.smooth = true
	}
	col := 0
	if len(args) > 1 {
		col = int(toFloat(args[1]))
	}
	return holder.ValueAt(s.now, col)
}

func stringArg(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

// ReadMatrix parses and caches path as a matrix literal, per the mfile()
// and readMatrix() built-ins.
func (s *Simulator) ReadMatrix(path string) *Matrix {
	m, err := ReadMatrix(s.holders, path)
	if err != nil {
		s.logger.Error("read matrix", "path", path, "err", err)
		return NewZeroMatrix(0, 0)
	}
	return m
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Call is the fallback for any function name CodeEmitter's builtin switch
// and extregistry both miss, keeping emitted code compiling instead of
// failing at generation time over a single unrecognized operator.
func Call(name string, args ...any) float64 {
	slog.Default().Warn("unresolved built-in function call", "name", name)
	return 0
}

package runtime

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Holder is the common lifecycle every process-scoped I/O object
// implements: a key (typically the file name, empty for stdin/stdout)
// and a Close called during Simulator.finish.
type Holder interface {
	Key() string
	Close() error
}

// Holders owns every open I/O holder for one simulation run. Holders are
// torn down in the reverse of their registration order, the way
// ChipletPlatform.Fini() tears its subsystems down last-registered-first.
type Holders struct {
	logger *slog.Logger
	byKey  map[string]Holder
	order  []Holder

	profiling io.Writer
}

func NewHolders() *Holders {
	return &Holders{logger: slog.Default(), byKey: make(map[string]Holder)}
}

// WithProfiling makes Finish write one "closing <type> <key>" line to w for
// each holder it closes; no timing is recorded.
func (h *Holders) WithProfiling(w io.Writer) *Holders {
	h.profiling = w
	return h
}

// Get returns the holder already registered under key, if any.
func (h *Holders) Get(key string) (Holder, bool) {
	holder, ok := h.byKey[key]
	return holder, ok
}

// Register adds a newly constructed holder, keyed by its own Key().
func (h *Holders) Register(holder Holder) {
	h.byKey[holder.Key()] = holder
	h.order = append(h.order, holder)
	h.logger.Debug("registered I/O holder", "key", holder.Key())
}

// Finish closes every holder in LIFO order, joining any close errors.
func (h *Holders) Finish() error {
	var errs []error
	for i := len(h.order) - 1; i >= 0; i-- {
		holder := h.order[i]
		if h.profiling != nil {
			fmt.Fprintf(h.profiling, "closing %T %q\n", holder, holder.Key())
		}
		if err := holder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.order = nil
	h.byKey = make(map[string]Holder)
	if len(errs) == 0 {
		return nil
	}
	msg := make([]string, len(errs))
	for i, e := range errs {
		msg[i] = e.Error()
	}
	return fmt.Errorf("closing I/O holders: %s", strings.Join(msg, "; "))
}

// InputHolder parses a CSV/TSV/space-delimited stream with delimiter
// auto-detected from the first non-empty line (tab beats comma beats
// space), per spec.md §4.4.5.
type InputHolder struct {
	key     string
	file    *os.File
	headers []string
	rows    [][]float64
	timeCol int // -1 if none
	smooth  bool
}

func OpenInputHolder(path string, timeMode, smooth bool) (*InputHolder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	h := &InputHolder{key: path, file: f, timeCol: -1, smooth: smooth}
	if err := h.parse(timeMode); err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

func (h *InputHolder) parse(timeMode bool) error {
	scanner := bufio.NewScanner(h.file)
	delim := byte(0)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if delim == 0 && strings.TrimSpace(line) != "" {
			delim = detectDelimiter(line)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if delim == 0 {
		delim = ' '
	}

	start := 0
	if len(lines) > 0 && looksLikeHeader(lines[0], delim) {
		h.headers = splitDelim(lines[0], delim)
		start = 1
	}

	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitDelim(line, delim)
		row := make([]float64, len(fields))
		for i, f := range fields {
			row[i] = parseFieldOrTime(f)
		}
		h.rows = append(h.rows, row)
	}

	if timeMode {
		h.timeCol = h.chooseTimeColumn()
	}
	return nil
}

func (h *InputHolder) chooseTimeColumn() int {
	candidates := []string{"$t", "time", "date", "t"}
	for _, name := range candidates {
		for i, header := range h.headers {
			if strings.EqualFold(header, name) {
				return i
			}
		}
	}
	for i, header := range h.headers {
		if strings.Contains(strings.ToLower(header), "time") {
			return i
		}
	}
	return -1
}

// Get returns the raw value at (row, col), with no time interpolation.
func (h *InputHolder) Get(row, col int) float64 {
	if row < 0 || row >= len(h.rows) || col < 0 {
		return 0
	}
	if col >= len(h.rows[row]) {
		return 0
	}
	return h.rows[row][col]
}

// ValueAt returns column col's value at simulated time t: when no time
// column was selected, t is treated as a row index directly; otherwise the
// surrounding rows are located by the time column, and smooth mode linearly
// interpolates column col between them; without smooth mode the last row
// whose time is at or before t is returned, even when the next row is
// nearer. See spec.md §4.4.5.
func (h *InputHolder) ValueAt(t float64, col int) float64 {
	if h.timeCol < 0 || len(h.rows) == 0 {
		return h.Get(int(t), col)
	}

	lo, hi := 0, -1
	for i, row := range h.rows {
		if h.timeCol >= len(row) {
			continue
		}
		if row[h.timeCol] <= t {
			lo = i
		}
		if hi == -1 && row[h.timeCol] >= t {
			hi = i
		}
	}
	if hi == -1 {
		hi = lo
	}
	if !h.smooth || lo == hi {
		return h.Get(lo, col)
	}

	t0, t1 := h.rows[lo][h.timeCol], h.rows[hi][h.timeCol]
	if t1 == t0 {
		return h.Get(lo, col)
	}
	frac := (t - t0) / (t1 - t0)
	v0, v1 := h.Get(lo, col), h.Get(hi, col)
	return v0 + frac*(v1-v0)
}

func (h *InputHolder) Key() string  { return h.key }
func (h *InputHolder) Close() error { return h.file.Close() }

func detectDelimiter(line string) byte {
	switch {
	case strings.Contains(line, "\t"):
		return '\t'
	case strings.Contains(line, ","):
		return ','
	default:
		return ' '
	}
}

func looksLikeHeader(line string, delim byte) bool {
	for _, field := range splitDelim(line, delim) {
		if _, err := strconv.ParseFloat(field, 64); err == nil {
			return false
		}
	}
	return true
}

func splitDelim(line string, delim byte) []string {
	if delim == ' ' {
		return strings.Fields(line)
	}
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = rune(delim)
	fields, err := r.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return fields
}

func parseFieldOrTime(field string) float64 {
	if v, err := strconv.ParseFloat(field, 64); err == nil {
		return v
	}
	if t, err := time.Parse(time.RFC3339, field); err == nil {
		return float64(t.Unix())
	}
	return math.NaN()
}

// OutputSink is what Simulator.Output buffers a row against: either the
// tab-separated OutputHolder or the SQLiteOutputHolder, selected by
// backend/c/outputFormat.
type OutputSink interface {
	Holder
	Write(t float64, values []float64, names []string) error
}

// OutputHolder writes tab-separated values with $t as column 0, plus a
// sibling .columns file recording each column's mode string.
type OutputHolder struct {
	key      string
	file     *os.File
	columns  *os.File
	names    []string
	wroteHdr bool
}

func OpenOutputHolder(path string) (*OutputHolder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cols, err := os.Create(path + ".columns")
	if err != nil {
		f.Close()
		return nil, err
	}
	return &OutputHolder{key: path, file: f, columns: cols}, nil
}

// Write appends one row: t followed by values in column order. NaN values
// are written as blank cells.
func (h *OutputHolder) Write(t float64, values []float64, names []string) error {
	if !h.wroteHdr {
		h.names = names
		fmt.Fprintf(h.file, "$t")
		for _, n := range names {
			fmt.Fprintf(h.file, "\t%s", n)
		}
		fmt.Fprintln(h.file)
		fmt.Fprintln(h.columns, "N2A.schema=3")
		for i, n := range names {
			fmt.Fprintf(h.columns, "%d:%s\n", i, n)
			fmt.Fprintf(h.columns, " scale:1\n")
		}
		h.wroteHdr = true
	}
	fmt.Fprintf(h.file, "%g", t)
	for _, v := range values {
		if math.IsNaN(v) {
			fmt.Fprint(h.file, "\t")
		} else {
			fmt.Fprintf(h.file, "\t%g", v)
		}
	}
	_, err := fmt.Fprintln(h.file)
	return err
}

func (h *OutputHolder) Key() string { return h.key }
func (h *OutputHolder) Close() error {
	err1 := h.file.Close()
	err2 := h.columns.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SQLiteOutputHolder implements the same role as OutputHolder but writes
// rows to a SQLite table instead of a TSV file, selected when model
// metadata sets backend/c/outputFormat=sqlite.
type SQLiteOutputHolder struct {
	key    string
	db     *sql.DB
	table  string
	names  []string
	insert *sql.Stmt
}

func OpenSQLiteOutputHolder(path, table string) (*SQLiteOutputHolder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &SQLiteOutputHolder{key: path, db: db, table: table}, nil
}

func (h *SQLiteOutputHolder) ensureSchema(names []string) error {
	if h.insert != nil {
		return nil
	}
	cols := make([]string, 0, len(names)+1)
	cols = append(cols, "t REAL")
	for _, n := range names {
		cols = append(cols, quoteSQLIdent(n)+" REAL")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteSQLIdent(h.table), strings.Join(cols, ", "))
	if _, err := h.db.Exec(ddl); err != nil {
		return err
	}
	if _, err := h.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_t ON %s (t)", h.table, quoteSQLIdent(h.table))); err != nil {
		return err
	}

	placeholders := make([]string, len(names)+1)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertCols := append([]string{"t"}, names...)
	stmt, err := h.db.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteSQLIdent(h.table), strings.Join(insertCols, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return err
	}
	h.insert = stmt
	h.names = names
	return nil
}

func (h *SQLiteOutputHolder) Write(t float64, values []float64, names []string) error {
	if err := h.ensureSchema(names); err != nil {
		return err
	}
	args := make([]any, 0, len(values)+1)
	args = append(args, t)
	for _, v := range values {
		args = append(args, v)
	}
	_, err := h.insert.Exec(args...)
	return err
}

func (h *SQLiteOutputHolder) Key() string { return h.key }
func (h *SQLiteOutputHolder) Close() error {
	if h.insert != nil {
		h.insert.Close()
	}
	return h.db.Close()
}

func quoteSQLIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqliteTableName derives a SQL-safe table name from an output path: its
// base name with the extension and any non-identifier characters stripped.
func sqliteTableName(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	var b strings.Builder
	for _, r := range base {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

// Mfile/MatrixInput cache a parsed matrix file by path so repeated
// readMatrix() calls against the same file share one parse.
type Mfile struct {
	key string
	m   *Matrix
}

func (h *Mfile) Key() string  { return h.key }
func (h *Mfile) Close() error { return nil }

// ReadMatrix parses path as whitespace-delimited rows of floats, caching
// the result in holders so repeated calls against the same path are free.
func ReadMatrix(holders *Holders, path string) (*Matrix, error) {
	if existing, ok := holders.Get(path); ok {
		return existing.(*Mfile).m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, f := range fields {
			row[i], _ = strconv.ParseFloat(f, 64)
		}
		rows = append(rows, row)
	}
	m := NewMatrix(rows)
	holders.Register(&Mfile{key: path, m: m})
	return m, nil
}

// sortedKeys lists the registered keys in sorted order, giving tests a
// deterministic view of the registry (teardown order is LIFO, not sorted).
func (h *Holders) sortedKeys() []string {
	keys := make([]string, 0, len(h.byKey))
	for k := range h.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

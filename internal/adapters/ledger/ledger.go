// Package ledger persists attendance records as one CSV file per calendar
// day. Files are append-only: the header is written when a day's file is
// created and every accepted session adds one row.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
)

// Layouts of the day file name and the TIME column.
const (
	fileDateLayout = "02-01-2006"
	timeLayout     = "15:04:05"
)

// Header is the first row of every day file.
var Header = []string{"NAME", "TIME", "SIMILARITY"}

// Ledger records attendance.
type Ledger interface {
	Record(ctx context.Context, rec model.AttendanceRecord) error
}

// CSVLedger writes Attendance_DD-MM-YYYY.csv files under dir.
type CSVLedger struct {
	dir      string
	fileMode os.FileMode
	logger   logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // day file name -> lock
}

// New returns a ledger rooted at dir. The directory is created on first write.
func New(dir string, opts ...Option) (*CSVLedger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrNoDirectory
	}
	l := &CSVLedger{
		dir:      dir,
		fileMode: 0o644,
		logger:   logger.Nop(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// FileName returns the day file name for t.
func FileName(t time.Time) string {
	return "Attendance_" + t.Format(fileDateLayout) + ".csv"
}

// Path returns the full path of the day file for t.
func (l *CSVLedger) Path(t time.Time) string {
	return filepath.Join(l.dir, FileName(t))
}

// dayLock returns the mutex guarding the named day file.
func (l *CSVLedger) dayLock(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// Record appends rec to the file of its calendar day, writing the header
// first when the file is new or empty. Appends to the same day are
// serialized; different days proceed independently.
func (l *CSVLedger) Record(ctx context.Context, rec model.AttendanceRecord) error {
	if strings.TrimSpace(rec.Name) == "" || rec.Time.IsZero() {
		return fmt.Errorf("%w: %w", ErrWrite, ErrInvalidRecord)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	start := time.Now()
	name := FileName(rec.Time)
	lock := l.dayLock(name)
	lock.Lock()
	err := l.appendRow(name, rec)
	lock.Unlock()

	metrics.RecordLedgerWriteLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordLedgerWriteError()
		metrics.RecordErrorByComponent("ledger", "write_failed")
		l.logger.Error(ctx, "attendance write failed",
			logger.String("name", rec.Name),
			logger.String("file", name),
			logger.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrWrite, name, err)
	}
	metrics.RecordLedgerWrite()
	l.logger.Info(ctx, "attendance recorded",
		logger.String("name", rec.Name),
		logger.String("time", rec.Time.Format(timeLayout)),
		logger.Float64("similarity", rec.Similarity),
		logger.String("file", name))
	return nil
}

func (l *CSVLedger) appendRow(name string, rec model.AttendanceRecord) (err error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, l.fileMode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(Row(rec)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Row renders rec as NAME,HH:MM:SS,0.000.
func Row(rec model.AttendanceRecord) []string {
	return []string{
		rec.Name,
		rec.Time.Format(timeLayout),
		strconv.FormatFloat(rec.Similarity, 'f', 3, 64),
	}
}

// Read returns the records of the calendar day of t in file order. A day
// without a file has no records.
func (l *CSVLedger) Read(ctx context.Context, t time.Time) ([]model.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	name := FileName(t)
	lock := l.dayLock(name)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	var out []model.AttendanceRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
		}
		if line == 1 && row[0] == Header[0] {
			continue
		}
		rec, err := parseRow(day, row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", ErrRead, name, line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(day time.Time, row []string) (model.AttendanceRecord, error) {
	clock, err := time.Parse(timeLayout, row[1])
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	sim, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	at := day.Add(time.Duration(clock.Hour())*time.Hour +
		time.Duration(clock.Minute())*time.Minute +
		time.Duration(clock.Second())*time.Second)
	return model.AttendanceRecord{Name: row[0], Time: at, Similarity: sim}, nil
}

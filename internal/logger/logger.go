// Package logger writes the local shield event log: one JSON line per
// inspected turn, one file per UTC day. Raw input is never written.
package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rad-security/clawkeeper-sub000/internal/detector"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

// Event is one log record. Only derived fields are stored.
type Event struct {
	Timestamp      string   `json:"ts"`
	Hostname       string   `json:"hostname"`
	TurnType       string   `json:"turn_type"`
	Verdict        string   `json:"verdict"`
	Severity       string   `json:"severity"`
	SecurityLevel  string   `json:"security_level"`
	InputHash      string   `json:"input_hash"`
	InputLength    int      `json:"input_length"`
	Confidence     float64  `json:"confidence"`
	DetectionLayer *string  `json:"detection_layer"`
	PatternName    *string  `json:"pattern_name"`
	Flags          []string `json:"flags"`
}

// NewEvent builds the record for a verdict computed under cfg.
func NewEvent(v detector.ShieldVerdict, cfg policy.ShieldConfig, now time.Time) Event {
	ev := Event{
		Timestamp:     now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Hostname:      cfg.Hostname,
		TurnType:      string(v.Turn),
		Verdict:       string(v.Verdict),
		Severity:      string(v.Severity),
		SecurityLevel: string(cfg.SecurityLevel),
		InputHash:     v.InputHash,
		InputLength:   v.InputLength,
		Confidence:    v.Confidence,
		Flags:         []string{},
	}
	if top, ok := v.Top(); ok {
		layer := string(top.Layer)
		ev.DetectionLayer = &layer
		if top.PatternName != "" {
			p := top.PatternName
			ev.PatternName = &p
		}
	}
	for _, d := range v.Flagged() {
		ev.Flags = append(ev.Flags, string(d.Layer))
	}
	return ev
}

// EventLogger appends events to {dir}/shield-YYYY-MM-DD.jsonl.
type EventLogger struct {
	dir string
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	file    *os.File
	fileDay string
}

// New creates a logger rooted at dir. The directory is created lazily.
func New(dir string, log zerolog.Logger) *EventLogger {
	return &EventLogger{dir: dir, log: log, now: time.Now}
}

// Path returns the log file for the UTC day containing t.
func (l *EventLogger) Path(t time.Time) string {
	return filepath.Join(l.dir, "shield-"+dayStamp(t)+".jsonl")
}

func dayStamp(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Record logs a verdict. Failures are reported to the diagnostic logger
// and otherwise ignored; detection never depends on the log.
func (l *EventLogger) Record(v detector.ShieldVerdict, cfg policy.ShieldConfig) {
	if err := l.Log(NewEvent(v, cfg, l.now())); err != nil {
		l.log.Warn().Err(err).Msg("shield event not logged")
	}
}

// Log appends one event to the file for its day.
func (l *EventLogger) Log(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fileFor(l.now())
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// fileFor returns the open handle for t's day, rotating at midnight UTC.
func (l *EventLogger) fileFor(t time.Time) (*os.File, error) {
	day := dayStamp(t)
	if l.file != nil && l.fileDay == day {
		return l.file, nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.Path(t), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	l.file, l.fileDay = f, day
	return f, nil
}

// ReadRecent returns up to n of the most recent raw lines from today's log.
// A missing or unreadable file yields no lines.
func (l *EventLogger) ReadRecent(n int) []string {
	if n <= 0 {
		return nil
	}
	data, err := os.ReadFile(l.Path(l.now()))
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// ReadEvents parses every event logged on the UTC day containing day.
// Malformed lines are skipped.
func (l *EventLogger) ReadEvents(day time.Time) ([]Event, error) {
	f, err := os.Open(l.Path(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Close releases the open log file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

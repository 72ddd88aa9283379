// Package circularlog implements a bounded, crash-recoverable append log:
// a single file with a hard byte cap, a single wrap-point marker, and
// tail/follow readers.
package circularlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Level is a log line's severity.
type Level int32

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO ",
	Warn:  "WARN ",
	Error: "ERROR",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "?????"
}

// Marker is the literal sentinel written immediately after the most recent
// write whenever the file has wrapped.
const Marker = "---^-OVERWRITE-^---\n"

var markerBytes = []byte(Marker)
var markerLen = int64(len(markerBytes))

// MinCap is the smallest permitted file capacity.
const MinCap = 256

// Log is a circular, crash-recoverable append log backed by a single file.
type Log struct {
	mu sync.Mutex

	file *os.File
	path string
	cap  int64

	writePos    int64
	overwriting bool
	markerPos   int64

	minLevel atomic.Int32
}

// Init opens (or creates) path, scans it for a wrap marker to recover
// writePos/overwriting, and returns a ready Log. cap must be >= MinCap.
func Init(path string, capBytes int64, minLevel Level) (*Log, error) {
	if capBytes < MinCap {
		return nil, fmt.Errorf("circularlog: cap %d below minimum %d", capBytes, MinCap)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("circularlog: open %s: %w", path, err)
	}

	l := &Log{file: f, path: path, cap: capBytes, markerPos: -1}
	l.minLevel.Store(int32(minLevel))

	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) recover() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("circularlog: stat: %w", err)
	}
	size := info.Size()

	buf := make([]byte, size)
	if _, err := l.file.ReadAt(buf, 0); err != nil && err != io.EOF {
		return fmt.Errorf("circularlog: scan: %w", err)
	}

	if idx := bytes.Index(buf, markerBytes); idx >= 0 {
		l.writePos = int64(idx)
		l.overwriting = true
		l.markerPos = int64(idx)
		return nil
	}

	if size >= l.cap {
		l.writePos = 0
		l.overwriting = true
		return nil
	}

	l.writePos = size
	l.overwriting = false
	return nil
}

// SetMinLevel changes the level filter. Lock-free (atomic, relaxed).
func (l *Log) SetMinLevel(level Level) { l.minLevel.Store(int32(level)) }

// MinLevel returns the current level filter.
func (l *Log) MinLevel() Level { return Level(l.minLevel.Load()) }

// Write appends one formatted line if level passes the filter. Lines longer
// than cap-markerLen are truncated. The line is also mirrored to stderr
// inside the same lock, for atomicity between the two sinks.
func (l *Log) Write(level Level, format string, args ...interface{}) error {
	if int32(level) < l.minLevel.Load() {
		return nil
	}

	msg := fmt.Sprintf(format, args...)
	line := formatLine(level, msg, l.cap-markerLen)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeLineLocked(line); err != nil {
		return err
	}
	os.Stderr.Write(line)
	return nil
}

func formatLine(level Level, msg string, maxLen int64) []byte {
	ts := time.Now().UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] [%s] %s\n", ts, level.String(), msg)
	if maxLen > 0 && int64(len(line)) > maxLen {
		// preserve the trailing newline after truncation
		line = line[:maxLen-1] + "\n"
	}
	return []byte(line)
}

func (l *Log) writeLineLocked(line []byte) error {
	n := int64(len(line))

	needsMarkerRoom := l.overwriting
	fits := l.writePos+n <= l.cap
	if needsMarkerRoom {
		fits = fits && l.writePos+n+markerLen <= l.cap
	}

	if !fits {
		if l.overwriting {
			if err := l.blankMarkerLocked(); err != nil {
				return err
			}
		}
		l.writePos = 0
		l.overwriting = true
	}

	if _, err := l.file.WriteAt(line, l.writePos); err != nil {
		return fmt.Errorf("circularlog: write: %w", err)
	}
	l.writePos += n

	if l.overwriting {
		if _, err := l.file.WriteAt(markerBytes, l.writePos); err != nil {
			return fmt.Errorf("circularlog: write marker: %w", err)
		}
		l.markerPos = l.writePos
	}
	return nil
}

func (l *Log) blankMarkerLocked() error {
	if l.markerPos < 0 {
		return nil
	}
	blank := make([]byte, markerLen)
	for i := range blank {
		blank[i] = ' '
	}
	blank[len(blank)-1] = '\n'
	_, err := l.file.WriteAt(blank, l.markerPos)
	return err
}

// Debugf logs at Debug.
func (l *Log) Debugf(format string, args ...interface{}) error { return l.Write(Debug, format, args...) }

// Infof logs at Info.
func (l *Log) Infof(format string, args ...interface{}) error { return l.Write(Info, format, args...) }

// Warnf logs at Warn.
func (l *Log) Warnf(format string, args ...interface{}) error { return l.Write(Warn, format, args...) }

// Errorf logs at Error.
func (l *Log) Errorf(format string, args ...interface{}) error { return l.Write(Error, format, args...) }

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Cap returns the configured capacity in bytes.
func (l *Log) Cap() int64 { return l.cap }

// Overwriting reports whether the file has wrapped.
func (l *Log) Overwriting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overwriting
}

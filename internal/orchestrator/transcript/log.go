// Package transcript keeps the append-only meeting transcript and the rolling conversation window.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindowSize is how many recent segments the conversation window holds.
const DefaultWindowSize = 20

// Segment is one non-empty recognized utterance.
type Segment struct {
	Index int       `json:"index"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Log is the transcript of one session. It is safe for concurrent use;
// the transcription path is its only writer.
type Log struct {
	mu       sync.RWMutex
	segments []Segment
	window   []Segment
	size     int
	now      func() time.Time
}

// NewLog creates an empty log whose conversation window holds windowSize segments.
func NewLog(windowSize int) *Log {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Log{size: windowSize, window: make([]Segment, 0, windowSize), now: time.Now}
}

// Append records text as the next segment and slides the window, evicting the oldest entry when full.
func (l *Log) Append(text string) Segment {
	l.mu.Lock()
	defer l.mu.Unlock()

	seg := Segment{Index: len(l.segments), Text: text, At: l.now()}
	l.segments = append(l.segments, seg)

	if len(l.window) == l.size {
		copy(l.window, l.window[1:])
		l.window = l.window[:l.size-1]
	}
	l.window = append(l.window, seg)
	return seg
}

// Len returns the number of segments in the full transcript.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// WindowLen returns the number of segments in the conversation window.
func (l *Log) WindowLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.window)
}

// Snapshot joins the conversation window with single spaces.
func (l *Log) Snapshot() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return join(l.window, " ")
}

// Segments returns a copy of the full transcript.
func (l *Log) Segments() []Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Segment(nil), l.segments...)
}

// RecentText joins the last n segments of the full transcript with single spaces.
func (l *Log) RecentText(n int) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n < len(l.segments) {
		return join(l.segments[len(l.segments)-n:], " ")
	}
	return join(l.segments, " ")
}

// Text joins the full transcript with single spaces, the form sent for analysis.
func (l *Log) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return join(l.segments, " ")
}

func join(segs []Segment, sep string) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

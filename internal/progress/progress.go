// Package progress reports per-file progress of the hashing and purge
// stages.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter receives per-file progress from concurrent workers.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// SetTotal starts a stage; 0 means unknown
	SetTotal(totalFiles int, totalBytes int64)
	// Start marks a file as picked up by a worker
	Start(path string, size int64)
	// Done marks a file as processed
	Done(path string, size int64)
	// Failed marks a file as failed
	Failed(path string, err error)
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateComplete
	UpdateError
)

// Update is one event together with the stage counters after it
type Update struct {
	Type           UpdateType
	Path           string
	Size           int64
	FilesCompleted int
	FilesFailed    int
	FilesTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// Finished reports whether every expected file has been accounted for
func (u Update) Finished() bool {
	return u.FilesTotal > 0 && u.FilesCompleted+u.FilesFailed >= u.FilesTotal
}

// Callback receives every update
type Callback func(update Update)

// tally holds the counters of one stage
type tally struct {
	filesTotal, filesDone, filesFailed int
	bytesTotal, bytesDone              int64
	started                            time.Time
}

func (t *tally) rate() float64 {
	elapsed := time.Since(t.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.bytesDone) / elapsed
}

func (t *tally) update(kind UpdateType, path string, size int64, err error) Update {
	return Update{
		Type:           kind,
		Path:           path,
		Size:           size,
		FilesCompleted: t.filesDone,
		FilesFailed:    t.filesFailed,
		FilesTotal:     t.filesTotal,
		BytesCompleted: t.bytesDone,
		BytesTotal:     t.bytesTotal,
		BytesPerSecond: t.rate(),
		Error:          err,
	}
}

// CallbackReporter counts events and hands each one to a callback. The
// callback runs without the reporter's lock held, so it may call back
// into the reporter.
type CallbackReporter struct {
	callback Callback

	mu sync.Mutex
	t  tally
}

// NewCallbackReporter creates a CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		t:        tally{started: time.Now()},
	}
}

// record applies fn to the counters and emits the resulting update
func (r *CallbackReporter) record(fn func(*tally), kind UpdateType, path string, size int64, err error) {
	r.mu.Lock()
	if fn != nil {
		fn(&r.t)
	}
	u := r.t.update(kind, path, size, err)
	r.mu.Unlock()

	if r.callback != nil {
		r.callback(u)
	}
}

// SetTotal resets the counters for a new stage
func (r *CallbackReporter) SetTotal(totalFiles int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t = tally{filesTotal: totalFiles, bytesTotal: totalBytes, started: time.Now()}
}

// Start implements Reporter
func (r *CallbackReporter) Start(path string, size int64) {
	r.record(nil, UpdateStart, path, size, nil)
}

// Done implements Reporter
func (r *CallbackReporter) Done(path string, size int64) {
	r.record(func(t *tally) {
		t.filesDone++
		t.bytesDone += size
	}, UpdateComplete, path, size, nil)
}

// Failed implements Reporter
func (r *CallbackReporter) Failed(path string, err error) {
	r.record(func(t *tally) { t.filesFailed++ }, UpdateError, path, 0, err)
}

// DefaultRedrawInterval limits how often a LineReporter rewrites its line
const DefaultRedrawInterval = 100 * time.Millisecond

// LineReporter rewrites a single status line on a terminal, e.g.
// "\rTotal files hashed: 42 (1.2 MiB) 3.0 MiB/s". Failures and the last
// file of a stage are always drawn; other updates at most once per
// interval.
type LineReporter struct {
	*CallbackReporter

	w        io.Writer
	label    string
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastDraw time.Time
}

// NewLineReporter creates a LineReporter writing to w
func NewLineReporter(w io.Writer, label string) *LineReporter {
	lr := &LineReporter{
		w:        w,
		label:    label,
		interval: DefaultRedrawInterval,
		now:      time.Now,
	}
	lr.CallbackReporter = NewCallbackReporter(lr.draw)
	return lr
}

func (lr *LineReporter) draw(u Update) {
	if u.Type == UpdateStart {
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	now := lr.now()
	if u.Type == UpdateComplete && !u.Finished() && now.Sub(lr.lastDraw) < lr.interval {
		return
	}
	lr.lastDraw = now
	io.WriteString(lr.w, "\r"+FormatLine(lr.label, u))
}

// FormatLine renders the counters of u after label
func FormatLine(label string, u Update) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s)", label, humanize.Comma(int64(u.FilesCompleted)), FormatBytes(u.BytesCompleted))
	if u.BytesPerSecond > 0 {
		b.WriteString(" " + FormatSpeed(u.BytesPerSecond))
	}
	if u.FilesFailed > 0 {
		b.WriteString(" / failed: " + humanize.Comma(int64(u.FilesFailed)))
	}
	if u.FilesTotal > 0 {
		b.WriteString(" " + FormatProgress(int64(u.FilesCompleted+u.FilesFailed), int64(u.FilesTotal), 20))
	}
	return b.String()
}

// NullReporter discards everything
type NullReporter struct{}

func (NullReporter) SetTotal(int, int64)  {}
func (NullReporter) Start(string, int64)  {}
func (NullReporter) Done(string, int64)   {}
func (NullReporter) Failed(string, error) {}

// FormatBytes renders a byte count in IEC units; negatives render as 0
func FormatBytes(bytes int64) string {
	return humanize.IBytes(uint64(max(bytes, 0)))
}

// FormatSpeed renders a transfer rate
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress renders a bar like "[=====>    ]  50.0%", or "" when
// total is unknown.
func FormatProgress(current, total int64, width int) string {
	if total <= 0 {
		return ""
	}

	ratio := float64(current) / float64(total)
	filled := min(int(ratio*float64(width)), width)

	bar := strings.Repeat("=", filled)
	if filled < width {
		bar += ">" + strings.Repeat(" ", width-filled-1)
	}
	return fmt.Sprintf("[%s] %5.1f%%", bar, ratio*100)
}

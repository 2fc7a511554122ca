package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
)

// lineChannelCapacity bounds the stderr line channel between the reader
// goroutine and the run loop.
const lineChannelCapacity = 256

// ProgressFunc receives coalesced numeric progress updates in [0, 99].
type ProgressFunc func(progress int)

// activeProcess is one entry in the active-process table. The runner installs
// it on spawn and removes it on return; cancellation only flips the flag and
// kills the child.
type activeProcess struct {
	cmd       *exec.Cmd
	cancelled bool
}

// Runner executes transcoder invocations one at a time per task, enforcing a
// stall timeout and supporting kill-by-task-id cancellation.
type Runner struct {
	ffmpegPath string
	stall      time.Duration
	tailLines  int
	step       int
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	active map[models.ULID]*activeProcess
}

// NewRunner creates a Runner from transcoder and dispatcher configuration.
// The ffmpeg binary is resolved lazily on the first Run so a missing binary
// fails tasks rather than startup.
func NewRunner(tcfg config.TranscoderConfig, dcfg config.DispatcherConfig, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		ffmpegPath: tcfg.FFmpegPath,
		stall:      tcfg.StallTimeout,
		tailLines:  tcfg.StderrTailLines,
		step:       dcfg.ProgressStepPercent,
		interval:   dcfg.ProgressInterval,
		logger:     observability.WithComponent(log, "runner"),
	}
}

// Kill terminates the running process for a task, marking it cancelled.
// Returns false when the task has no active process.
func (r *Runner) Kill(taskID models.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	proc, ok := r.active[taskID]
	if !ok {
		return false
	}
	proc.cancelled = true
	if proc.cmd.Process != nil {
		_ = proc.cmd.Process.Kill()
	}
	return true
}

// Running reports whether a task currently has an active process.
func (r *Runner) Running(taskID models.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[taskID]
	return ok
}

// Run executes the argument vector for a task and blocks until the child
// exits. totalDuration <= 0 disables numeric progress. The returned tail is
// the last stderr lines regardless of outcome.
//
// Error kinds: ErrTranscoderMissing (binary absent), ErrTranscoderStalled
// (no stderr line within the stall timeout), ErrCancelled (killed via Kill or
// context), ErrTranscoderFailed (non-zero exit).
func (r *Runner) Run(ctx context.Context, taskID models.ULID, args []string, totalDuration float64, onProgress ProgressFunc) ([]string, error) {
	binary, err := ResolveBinary(r.ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = nil
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTranscoderMissing, err)
	}

	proc := &activeProcess{cmd: cmd}
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[models.ULID]*activeProcess)
	}
	r.active[taskID] = proc
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.active, taskID)
		r.mu.Unlock()
	}()

	// Dedicated reader so a blocking stderr read never blocks the run loop.
	lines := make(chan string, lineChannelCapacity)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanCarriageOrNewline)
		for scanner.Scan() {
			lines <- strings.ToValidUTF8(scanner.Text(), "�")
		}
	}()

	tail := newTailBuffer(r.tailLines)
	lastPublished := -1
	var lastPublishAt time.Time
	stalled := false

	stallTimer := time.NewTimer(r.stall)
	defer stallTimer.Stop()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if !stallTimer.Stop() {
				select {
				case <-stallTimer.C:
				default:
				}
			}
			stallTimer.Reset(r.stall)

			if trimmed := strings.TrimSpace(line); trimmed != "" {
				tail.add(trimmed)
			}

			if onProgress == nil {
				continue
			}
			elapsed, ok := parseElapsed(line)
			if !ok {
				continue
			}
			progress := progressPercent(elapsed, totalDuration)
			if progress < 0 {
				continue
			}
			now := time.Now()
			if progress >= lastPublished+r.step || now.Sub(lastPublishAt) >= r.interval {
				onProgress(progress)
				lastPublished = progress
				lastPublishAt = now
			}

		case <-stallTimer.C:
			stalled = true
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			// Drain remaining buffered stderr into the tail.
			for line := range lines {
				if trimmed := strings.TrimSpace(line); trimmed != "" {
					tail.add(trimmed)
				}
			}
			break loop

		case <-ctx.Done():
			r.mu.Lock()
			proc.cancelled = true
			r.mu.Unlock()
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			for line := range lines {
				if trimmed := strings.TrimSpace(line); trimmed != "" {
					tail.add(trimmed)
				}
			}
			break loop
		}
	}

	waitErr := cmd.Wait()

	r.mu.Lock()
	cancelled := proc.cancelled
	r.mu.Unlock()

	switch {
	case stalled:
		r.logger.Warn("transcoder stalled",
			slog.String("task_id", taskID.String()),
			slog.Duration("stall_timeout", r.stall))
		return tail.lines(), models.ErrTranscoderStalled
	case cancelled:
		return tail.lines(), models.ErrCancelled
	case waitErr != nil:
		return tail.lines(), fmt.Errorf("%w: %v", models.ErrTranscoderFailed, waitErr)
	default:
		return tail.lines(), nil
	}
}

// scanCarriageOrNewline splits on \n or \r; the transcoder rewrites its
// status line with bare carriage returns.
func scanCarriageOrNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer retains the last N lines.
type tailBuffer struct {
	max   int
	ring  []string
	next  int
	count int
}

func newTailBuffer(max int) *tailBuffer {
	if max < 1 {
		max = 1
	}
	return &tailBuffer{max: max, ring: make([]string, max)}
}

func (b *tailBuffer) add(line string) {
	b.ring[b.next] = line
	b.next = (b.next + 1) % b.max
	if b.count < b.max {
		b.count++
	}
}

// lines returns the retained lines oldest first.
func (b *tailBuffer) lines() []string {
	out := make([]string, 0, b.count)
	start := (b.next - b.count + b.max) % b.max
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i)%b.max])
	}
	return out
}

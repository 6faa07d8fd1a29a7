package scheduler

import "sync"

// RunHandle is the caller's view of an in-progress run: a progress stream, a
// cooperative stop switch, and the final report.
type RunHandle struct {
	progress <-chan Progress
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	report *Report
	err    error
}

func newRunHandle(progress <-chan Progress) *RunHandle {
	return &RunHandle{
		progress: progress,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Progress returns the progress stream. The channel is closed when the run
// finishes; events may be dropped under a slow consumer but counters only
// ever advance.
func (h *RunHandle) Progress() <-chan Progress {
	return h.progress
}

// Stop requests cancellation. It is monotonic: no new work is assigned after
// the first call, but in-flight calls run to completion and their results are
// still recorded in the final report.
func (h *RunHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Wait blocks until the run reaches Drained or Cancelled and returns the
// final report.
func (h *RunHandle) Wait() (*Report, error) {
	<-h.done
	return h.report, h.err
}

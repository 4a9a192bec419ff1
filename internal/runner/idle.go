package runner

import (
	"io"
	"sync"
	"time"
)

// idleTimeoutReader wraps the engine's stdout and fires cancel when no data
// arrives for the configured timeout. Each read with n > 0 resets the timer.
type idleTimeoutReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
	cancel  func()

	mu    sync.Mutex
	idled bool
}

// newIdleTimeoutReader returns a reader that calls cancel after timeout of
// inactivity. A timeout <= 0 disables detection.
func newIdleTimeoutReader(r io.Reader, timeout time.Duration, cancel func()) *idleTimeoutReader {
	itr := &idleTimeoutReader{r: r, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		itr.timer = time.AfterFunc(timeout, itr.onTimeout)
	}
	return itr
}

func (itr *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := itr.r.Read(p)
	if n > 0 && itr.timer != nil {
		itr.timer.Reset(itr.timeout)
	}
	return n, err
}

func (itr *idleTimeoutReader) onTimeout() {
	itr.mu.Lock()
	itr.idled = true
	itr.mu.Unlock()
	if itr.cancel != nil {
		itr.cancel()
	}
}

// Idled reports whether the idle timeout fired.
func (itr *idleTimeoutReader) Idled() bool {
	itr.mu.Lock()
	defer itr.mu.Unlock()
	return itr.idled
}

// Stop disarms the timer.
func (itr *idleTimeoutReader) Stop() {
	if itr.timer != nil {
		itr.timer.Stop()
	}
}

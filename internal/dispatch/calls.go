// ABOUTME: Per-command single-resolution slots for synchronous Execute calls.
// ABOUTME: The correlator, the per-call timer, and Cancel race to resolve; one wins.

package dispatch

import (
	"sync"

	"github.com/droverhq/drover/internal/command"
)

// callTable holds one slot per in-flight synchronous call, keyed by command
// id. A slot resolves at most once: the winner removes the entry in the same
// critical section, so every later resolver finds nothing.
type callTable struct {
	mu    sync.Mutex
	slots map[string]chan command.Result
}

func newCallTable() *callTable {
	return &callTable{slots: make(map[string]chan command.Result)}
}

// register creates the slot for a command id and returns its channel. The
// channel is buffered so resolve never blocks on a caller that gave up.
func (t *callTable) register(id string) <-chan command.Result {
	ch := make(chan command.Result, 1)
	t.mu.Lock()
	t.slots[id] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers the result to a waiting call. Returns false when no slot
// exists, either because the command was asynchronous or someone already won.
func (t *callTable) resolve(id string, res command.Result) bool {
	t.mu.Lock()
	ch, ok := t.slots[id]
	if ok {
		delete(t.slots, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- res
	return true
}

// drop removes a slot without delivering anything. Used when the caller
// stops waiting or already took its outcome through another path.
func (t *callTable) drop(id string) {
	t.mu.Lock()
	delete(t.slots, id)
	t.mu.Unlock()
}

// size reports the number of in-flight synchronous calls.
func (t *callTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

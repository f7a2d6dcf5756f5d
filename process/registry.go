package process

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/zhubert/plural-agent/logger"
)

// DefaultGracePeriod is how long TerminateAll waits between the polite
// signal and the hard kill.
const DefaultGracePeriod = 2 * time.Second

// Handle is the subset of *os.Process the registry needs.
type Handle interface {
	Signal(sig os.Signal) error
	Kill() error
}

type entry struct {
	pid    int
	handle Handle
	name   string
}

// Registry tracks in-flight child processes so they can all be cancelled.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]entry
	grace   time.Duration
}

// NewRegistry creates an empty registry using DefaultGracePeriod.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uint64]entry),
		grace:   DefaultGracePeriod,
	}
}

// SetGracePeriod changes the delay before the hard kill in TerminateAll.
func (r *Registry) SetGracePeriod(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grace = d
}

// Track registers a running process. The returned function removes it and
// must be called once the process has exited.
func (r *Registry) Track(pid int, name string, h Handle) (untrack func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries[id] = entry{pid: pid, handle: h, name: name}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.entries, id)
			r.mu.Unlock()
		})
	}
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Tracks reports whether pid belongs to a tracked process.
func (r *Registry) Tracks(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.pid == pid {
			return true
		}
	}
	return false
}

// TerminateAll sends SIGTERM to every tracked process and returns without
// waiting. Processes still tracked after the grace period are killed.
// Returns the number of processes signalled.
func (r *Registry) TerminateAll() int {
	r.mu.Lock()
	snapshot := make(map[uint64]entry, len(r.entries))
	for id, e := range r.entries {
		snapshot[id] = e
	}
	grace := r.grace
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return 0
	}

	log := logger.WithComponent("process")
	for _, e := range snapshot {
		if err := e.handle.Signal(syscall.SIGTERM); err != nil {
			log.Debug("terminate signal failed", "pid", e.pid, "name", e.name, "error", err)
		} else {
			log.Info("sent terminate signal", "pid", e.pid, "name", e.name)
		}
	}

	go func() {
		time.Sleep(grace)
		r.mu.Lock()
		var stragglers []entry
		for id, e := range snapshot {
			if _, ok := r.entries[id]; ok {
				stragglers = append(stragglers, e)
			}
		}
		r.mu.Unlock()

		for _, e := range stragglers {
			log.Warn("process ignored terminate, killing", "pid", e.pid, "name", e.name)
			_ = e.handle.Kill()
		}
	}()

	return len(snapshot)
}

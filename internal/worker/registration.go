package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unishare/unishare-sw/internal/logger"
)

// Registration tracks which worker controls clients. A new worker takes over
// as soon as it has installed and activated; until then, and if it fails to
// install, the previous worker stays in control.
type Registration struct {
	mu     sync.Mutex
	active atomic.Pointer[Worker]
}

var _ Clients = (*Registration)(nil)

func NewRegistration() *Registration { return &Registration{} }

// Register installs and activates w. Registrations are serialized.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := w.Install(ctx); err != nil {
		if prev := r.active.Load(); prev != nil {
			logger.Warnf("keeping %s in control after failed install of %s", prev.Version(), w.Version())
		}
		return err
	}
	return w.Activate(ctx, r)
}

// Claim makes w the controlling worker and retires the one it replaces.
func (r *Registration) Claim(w *Worker) {
	prev := r.active.Swap(w)
	if prev != nil && prev != w {
		prev.setState(StateRedundant)
		logger.Infof("%s replaced %s", w.Version(), prev.Version())
	}
}

// Active returns the controlling worker, or nil before the first activation.
func (r *Registration) Active() *Worker { return r.active.Load() }

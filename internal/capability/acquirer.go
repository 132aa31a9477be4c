package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/rtcall/internal/util"
)

// Acquirer requests the capability from its Source at most once. Every
// caller of Acquire, concurrent or later, observes the same result.
type Acquirer struct {
	source      Source
	constraints Constraints

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	cap  *Capability
	err  error

	mu       sync.Mutex
	attached map[string]struct{} // track ids already added to the handle
}

// NewAcquirer creates an Acquirer. Nothing is requested until Start or Acquire.
func NewAcquirer(source Source, constraints Constraints) *Acquirer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acquirer{
		source:      source,
		constraints: constraints,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		attached:    make(map[string]struct{}),
	}
}

// Start triggers the device request in the background if it has not been
// triggered yet.
func (a *Acquirer) Start() {
	a.once.Do(func() {
		go a.request()
	})
}

func (a *Acquirer) request() {
	defer close(a.done)

	c, err := a.source.Request(a.ctx, a.constraints)
	switch {
	case err != nil:
		a.err = err
	case c == nil || len(c.Tracks) == 0:
		a.err = ErrUnavailable
	default:
		a.cap = c
		util.LogDebug("capability %s acquired with %d track(s)", c.ID, len(c.Tracks))
	}
}

// Acquire triggers the request if needed and waits for its result. A
// cancelled ctx only abandons this caller's wait; the shared request keeps
// running until Close.
func (a *Acquirer) Acquire(ctx context.Context) (*Capability, error) {
	a.Start()
	select {
	case <-a.done:
		return a.cap, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready is closed once the request has finished, successfully or not.
func (a *Acquirer) Ready() <-chan struct{} {
	return a.done
}

// Result returns the outcome. Only meaningful after Ready is closed.
func (a *Acquirer) Result() (*Capability, error) {
	select {
	case <-a.done:
		return a.cap, a.err
	default:
		return nil, errors.New("capability request still pending")
	}
}

// Attach adds every track of the acquired capability to h as an outgoing
// track. Tracks that were already attached are skipped.
func (a *Acquirer) Attach(h TrackAdder) error {
	c, err := a.Result()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, track := range c.Tracks {
		if _, ok := a.attached[track.ID()]; ok {
			continue
		}
		if err := h.AddTrack(track); err != nil {
			return fmt.Errorf("attach %s track %q: %w", track.Kind(), track.ID(), err)
		}
		a.attached[track.ID()] = struct{}{}
	}
	return nil
}

// Close cancels an in-flight request. The pending result then resolves with
// the source's cancellation error.
func (a *Acquirer) Close() {
	a.cancel()
}

package tracker

import "context"

// Queue is a single-slot handoff between the ingestion loop and the device
// commander. The producer never blocks: a newer aim point replaces an
// unconsumed one, so a slow device always receives the latest instruction
// rather than working through a backlog.
type Queue struct {
	ch chan AimPoint
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan AimPoint, 1)}
}

// Put stores the aim point, discarding any unconsumed predecessor.
func (q *Queue) Put(aim AimPoint) {
	for {
		select {
		case q.ch <- aim:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// Get blocks until an aim point is available or the context is cancelled.
func (q *Queue) Get(ctx context.Context) (AimPoint, error) {
	select {
	case aim := <-q.ch:
		return aim, nil
	case <-ctx.Done():
		return AimPoint{}, ctx.Err()
	}
}

// TryGet returns the pending aim point without blocking.
func (q *Queue) TryGet() (AimPoint, bool) {
	select {
	case aim := <-q.ch:
		return aim, true
	default:
		return AimPoint{}, false
	}
}

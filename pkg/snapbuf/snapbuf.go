// Package snapbuf implements a pre-sized, high-water-mark-driven pool
// of record.Snapshot buffers for the hot sampling path: PushSnapshot's
// allocating path and PullSnapshot's non-allocating path both need a
// buffer sized to "about how many attributes are usually active right
// now", and a static caller-guessed capacity either wastes memory or
// keeps reallocating once real traffic exceeds the guess. Pool instead
// tracks the largest snapshot length it has ever seen and hands out
// buffers sized to that, growing the mark (never shrinking it) as
// bigger snapshots come through.
package snapbuf

import (
	"sync"
	"sync/atomic"

	"github.com/LLNL/caliper-go/pkg/record"
)

// Pool hands out record.Snapshot buffers and tracks the running
// high-water mark of how large they need to be. It is safe for
// concurrent use: the mark is a single atomic int64 and the free-list
// beneath Get/Put is a sync.Pool.
type Pool struct {
	highWater atomic.Int64
	free      sync.Pool
}

// New creates a Pool whose high-water mark starts at initialCap (the
// caller's best guess, e.g. a previously configured SnapshotCapHint);
// it only ever grows from there as Put/Observe see larger snapshots.
func New(initialCap int) *Pool {
	p := &Pool{}
	p.highWater.Store(int64(initialCap))
	p.free.New = func() any {
		return make(record.Snapshot, 0, int(p.highWater.Load()))
	}
	return p
}

// HighWater returns the current high-water mark.
func (p *Pool) HighWater() int {
	return int(p.highWater.Load())
}

// Observe folds n into the running high-water mark without touching
// the free-list; used by an allocating caller (PushSnapshot) that
// builds its own buffer directly rather than borrowing one from Get,
// since the buffer it returns escapes to the caller and can't be
// recycled here.
func (p *Pool) Observe(n int) {
	for {
		cur := p.highWater.Load()
		if int64(n) <= cur {
			return
		}
		if p.highWater.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Get returns a buffer of exactly HighWater() length (not merely
// capacity), either reused from the free-list or freshly allocated —
// ready to hand straight to Blackboard.TryFill/Channel.PullSnapshot,
// which write into buf[0:len(buf)] rather than appending. Pairs with
// Put: a caller that owns a buffer's whole lifetime (e.g. one
// PullSnapshot buffer reused across sampling ticks) should Get before
// sampling and Put — sliced down to however many entries TryFill
// actually wrote — when done with it.
func (p *Pool) Get() record.Snapshot {
	buf := p.free.Get().(record.Snapshot)
	n := int(p.highWater.Load())
	if cap(buf) < n {
		return make(record.Snapshot, n)
	}
	return buf[:n]
}

// Put returns buf to the free-list and observes its length, growing
// the high-water mark if buf ran larger than anything seen before. The
// caller should pass the slice trimmed to however many entries it
// actually used, not the full buffer Get handed out, so the mark
// reflects real occupancy rather than previously allocated capacity.
func (p *Pool) Put(buf record.Snapshot) {
	p.Observe(len(buf))
	p.free.Put(buf[:0])
}

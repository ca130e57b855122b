package audio

import (
	"sync"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// Output abstracts the speaker resource that renders one PCM16LE clip.
type Output interface {
	Start(pcm []byte, sampleRate int) (Playback, error)
}

// Playback is one in-flight clip. Done is closed on natural completion and
// on Stop; Stop releases the underlying resource and is idempotent.
type Playback interface {
	Done() <-chan struct{}
	Stop()
}

// Policy decides what happens when a new item arrives mid-playback.
type Policy int

const (
	// PolicyQueue plays items strictly in arrival order.
	PolicyQueue Policy = iota
	// PolicyInterrupt stops the current item and flushes pending items when
	// a new one arrives (barge-in).
	PolicyInterrupt
)

// Item is one queued reply payload. Items without PCM carry text only and
// occupy no playback time.
type Item struct {
	Text       string
	PCM        []byte
	SampleRate int
}

// Queue serializes reply playback with an at-most-one-playing invariant.
// The queue exclusively owns the "currently playing" slot; generation
// numbers resolve races between a completing clip and a barge-in that
// already superseded it.
type Queue struct {
	mu     sync.Mutex
	out    Output
	policy Policy
	items  []Item
	cur    Playback
	gen    int
	closed bool

	onActive func() // queue went from idle to playing
	onIdle   func() // queue drained naturally
}

// NewQueue builds a playback coordinator over out. onActive and onIdle may
// be nil; they run under the queue lock so an instantly completing clip
// cannot deliver them out of order, and must not call back into the Queue.
func NewQueue(out Output, policy Policy, onActive, onIdle func()) *Queue {
	return &Queue{out: out, policy: policy, onActive: onActive, onIdle: onIdle}
}

// Enqueue adds one reply item. Under PolicyInterrupt an in-flight clip is
// stopped and pending items are discarded before the new item starts.
func (q *Queue) Enqueue(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.policy == PolicyInterrupt && q.cur != nil {
		q.stopCurrentLocked()
		q.items = q.items[:0]
	}
	q.items = append(q.items, it)
	if q.startNextLocked() && q.onActive != nil {
		q.onActive()
	}
}

// Stop halts the current clip and discards all pending items. The playback
// resource is released synchronously. Safe to call repeatedly and after
// Close.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopCurrentLocked()
	q.items = q.items[:0]
	q.mu.Unlock()
}

// Close stops playback and rejects all future items.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.stopCurrentLocked()
	q.items = nil
	q.mu.Unlock()
}

// Playing reports whether a clip currently occupies the playing slot.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cur != nil
}

// Pending returns the number of queued (not yet playing) items.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) stopCurrentLocked() {
	if q.cur == nil {
		return
	}
	q.cur.Stop()
	q.cur = nil
	q.gen++
}

// startNextLocked pulls items until one starts playing. It returns true
// when the queue moved from idle to playing. Text-only and unplayable items
// are consumed without entering the playing slot.
func (q *Queue) startNextLocked() bool {
	if q.cur != nil || q.closed {
		return false
	}
	for len(q.items) > 0 {
		it := q.items[0]
		q.items = q.items[1:]
		if len(it.PCM) == 0 {
			continue
		}
		pb, err := q.out.Start(it.PCM, it.SampleRate)
		if err != nil {
			logging.Warnw("playback: start failed; dropping item", "err", err, "text_len", len(it.Text))
			continue
		}
		q.cur = pb
		q.gen++
		go q.watch(pb, q.gen)
		return true
	}
	return false
}

// watch waits for one clip to finish and advances the queue. A generation
// mismatch means the clip was superseded by barge-in or Stop while its
// completion was in flight; such completions are no-ops.
func (q *Queue) watch(pb Playback, gen int) {
	<-pb.Done()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen || q.cur != pb {
		return
	}
	q.cur = nil
	q.startNextLocked()
	if q.cur == nil && !q.closed && q.onIdle != nil {
		q.onIdle()
	}
}

package diffusion

import "sync"

// postQueue is an unbounded FIFO shared by the event path (producer) and the
// single diffusion worker (consumer). Enqueue never blocks; pop blocks until
// an item arrives or the queue is closed.
type postQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []post
	closed bool
}

func newPostQueue() *postQueue {
	q := &postQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *postQueue) push(item post) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, item)
	q.cond.Signal()
}

// pop blocks until an item is available, returning ok=false once the queue is
// closed and drained.
func (q *postQueue) pop() (post, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return post{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *postQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *postQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

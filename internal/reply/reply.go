// Package reply implements the per-listener reply queue: requests are
// handed off from the dispatcher to a single writer goroutine, which must
// be able to tell whether the originating client has since been evicted
// before it sends anything back to the network.
package reply

import (
	"net"
	"sync"
	"time"

	"github.com/radsecproxy/udpcore/internal/client"
)

// Request is a reply awaiting delivery back to the peer that originally
// sent the request it answers. The unexported client field is the
// back-reference the listener's
// expiry pass can sever (set to nil) without leaving a dangling pointer;
// the writer must re-read it under the queue's lock rather than cache it.
type Request struct {
	UDPSock   *net.UDPConn
	Payload   []byte
	CreatedAt time.Time

	// client is guarded by the owning Queue's mutex, not by Client's own
	// lock, so that ScrubClient (called from the client table's eviction
	// pass) and Shift (called from the writer loop) observe a consistent
	// view under a single lock acquisition, per the documented
	// peer-config -> replyq lock ordering.
	client *client.Client
}

// NewRequest creates a reply bound for the client that originated it.
func NewRequest(sock *net.UDPConn, payload []byte, from *client.Client) *Request {
	return &Request{
		UDPSock:   sock,
		Payload:   payload,
		CreatedAt: time.Now(),
		client:    from,
	}
}

// Queue is a FIFO of pending replies for one listener, guarded by a mutex
// and signaled by a condition variable so the writer goroutine can block
// until work arrives instead of polling.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Request
	closed bool
}

// NewQueue creates an empty reply queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a reply to the queue and wakes the writer.
func (q *Queue) Push(r *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, r)
	q.cond.Signal()
}

// Shift blocks until a reply is available or the queue is closed, then
// returns the next reply along with a snapshot of its destination address
// taken while still holding the lock. ok is false only when the queue was
// closed with no remaining entries.
func (q *Queue) Shift() (req *Request, dest *net.UDPAddr, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, nil, false
	}

	req = q.items[0]
	q.items = q.items[1:]

	if req.client != nil {
		dest = req.client.Addr
	}
	return req, dest, true
}

// ScrubClient clears the client back-reference on every queued reply that
// points at c, without removing the replies themselves. Called by the
// client table's eviction pass while the peer-config lock is already held;
// taking the queue lock here after the peer-config lock preserves the
// mandated lock ordering and prevents the writer from sending to an
// address that no longer has a live client record.
func (q *Queue) ScrubClient(c *client.Client) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.items {
		if r.client == c {
			r.client = nil
		}
	}
}

// Close marks the queue closed and wakes any blocked Shift callers. Replies
// already queued remain retrievable; Shift returns ok=false only once the
// queue is both closed and drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of replies currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

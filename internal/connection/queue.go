package connection

import "sync"

// serialQueue admits callers one at a time in arrival order. Each caller waits
// on the channel of the caller before it; releasing closes its own channel.
type serialQueue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// enter blocks until every earlier caller has released and returns the release func.
func (q *serialQueue) enter() func() {
	q.mu.Lock()
	prev := q.tail
	mine := make(chan struct{})
	q.tail = mine
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}
	var once sync.Once
	return func() { once.Do(func() { close(mine) }) }
}

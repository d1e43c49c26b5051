package crawler

import (
	"testing"
	"time"
)

// A worker parked in pop()'s cond.Wait() (queue empty, one item still
// outstanding) must wake and exit as soon as stop() is called, not only
// on the next push()/done() broadcast.
func TestQueueStopWakesBlockedPop(t *testing.T) {
	q := newQueue()
	q.push(item{url: "http://example.com/"})
	if _, ok := q.pop(); !ok {
		t.Fatal("expected first pop to return the pushed item")
	}
	// outstanding is now 1 (not yet done()'d) and the queue is empty, so
	// a second pop() call blocks in cond.Wait() until stop() or done().

	popped := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		popped <- ok
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine reach cond.Wait()
	q.stop()

	select {
	case ok := <-popped:
		if ok {
			t.Fatal("expected pop to return false after stop()")
		}
	case <-time.After(time.Second):
		t.Fatal("pop() did not wake up after stop()")
	}
}

// A freshly pushed item after stop() must never be dequeued.
func TestQueueStopRejectsItemsPushedAfterStop(t *testing.T) {
	q := newQueue()
	q.stop()
	q.push(item{url: "http://example.com/"})

	if _, ok := q.pop(); ok {
		t.Fatal("expected pop to refuse an item pushed after stop()")
	}
}

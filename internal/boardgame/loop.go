package boardgame

import (
	"sync"

	"go.uber.org/zap"
)

// loop is a single goroutine that runs posted tasks one at a time in order.
// Every mutation of BoardGame state happens on it. The queue is unbounded so
// tasks running on the loop can post further tasks without blocking.
type loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newLoop(logger *zap.Logger) *loop {
	l := &loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// post enqueues fn. It reports false once the loop has been stopped.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// sync blocks until every task posted before it has run. It must not be
// called from the loop itself.
func (l *loop) sync() {
	ran := make(chan struct{})
	if !l.post(func() { close(ran) }) {
		return
	}
	select {
	case <-ran:
	case <-l.done:
	}
}

// stop drains the queue and waits for the loop goroutine to exit.
func (l *loop) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, task := range tasks {
			l.runTask(task)
		}
		if closed && len(tasks) == 0 {
			return
		}
		if len(tasks) == 0 {
			<-l.wake
		}
	}
}

func (l *loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

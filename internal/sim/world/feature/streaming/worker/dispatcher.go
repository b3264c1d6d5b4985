package worker

import (
	"fmt"
	"sync"
)

// Dispatcher runs Generate on background goroutines. Only request and
// response values cross the boundary.
type Dispatcher struct {
	reqs chan Request
	out  chan Response

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewDispatcher(workers, backlog int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if backlog < 1 {
		backlog = 1
	}
	d := &Dispatcher{
		reqs: make(chan Request, backlog),
		out:  make(chan Response, backlog),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.loop()
	}
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case req := <-d.reqs:
			resp := Run(Generate, req)
			select {
			case d.out <- resp:
			case <-d.done:
				return
			}
		}
	}
}

// Run calls fn and turns a panic into an error response.
func Run(fn Func, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{ID: req.ID, Key: req.Key, Biome: req.Biome, LedgerSeq: req.LedgerSeq, Err: fmt.Errorf("worker: generation panic: %v", r)}
		}
	}()
	return fn(req)
}

func (d *Dispatcher) Submit(req Request) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.reqs <- req:
		return nil
	default:
		return fmt.Errorf("worker: backlog full")
	}
}

func (d *Dispatcher) Results() <-chan Response { return d.out }

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Sync runs each request on the submitting goroutine and buffers the
// result for the next Results read.
type Sync struct {
	fn  Func
	out chan Response
}

// NewSync returns a synchronous executor. A nil fn means Generate.
func NewSync(fn Func) *Sync {
	if fn == nil {
		fn = Generate
	}
	return &Sync{fn: fn, out: make(chan Response, 1)}
}

func (s *Sync) Submit(req Request) error {
	if len(s.out) > 0 {
		return fmt.Errorf("worker: previous result not consumed")
	}
	select {
	case s.out <- Run(s.fn, req):
		return nil
	default:
		return fmt.Errorf("worker: previous result not consumed")
	}
}

func (s *Sync) Results() <-chan Response { return s.out }

func (s *Sync) Close() {}

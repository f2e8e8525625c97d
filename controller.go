package weft

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// ControllerOption configures a Controller at construction time.
type ControllerOption func(*controllerConfig)

type controllerConfig struct {
	workerCount      int
	blockingPoolSize int // 0 means unbounded, one goroutine per blocking call
	logger           *slog.Logger
	baseRegistry     *Registry
}

// WithWorkerCount overrides the default worker count (2×logical CPUs).
func WithWorkerCount(n int) ControllerOption {
	return func(c *controllerConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithBlockingPoolSize bounds the blocking executor to n concurrent
// goroutines. The default, 0, is unbounded: every call to Controller.
// Blocking gets its own goroutine, matching Go's own `go func()` idiom
// rather than a fixed-size thread pool — goroutines are cheap enough that a
// JVM-style bounded pool is not the idiomatic default here (see DESIGN.md).
func WithBlockingPoolSize(n int) ControllerOption {
	return func(c *controllerConfig) { c.blockingPoolSize = n }
}

// WithLogger overrides the Controller's default slog.Logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *controllerConfig) { c.logger = l }
}

// WithBaseRegistry seeds every Execution's overlay with values, before
// start's own registryInitializer (if any) runs.
func WithBaseRegistry(r *Registry) ControllerOption {
	return func(c *controllerConfig) { c.baseRegistry = r }
}

// Controller owns a fixed pool of workers and a blocking executor, and is
// the entry point for starting Executions.
type Controller struct {
	workers      []*worker
	nextWorker   atomic.Uint64
	blockingSem  chan struct{} // nil when unbounded
	logger       *slog.Logger
	baseRegistry *Registry
}

// NewController builds a Controller and starts its workers' drain-loop
// goroutines. Callers should arrange to call Shutdown when done.
func NewController(opts ...ControllerOption) *Controller {
	cfg := controllerConfig{
		workerCount: 2 * runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Controller{logger: cfg.logger, baseRegistry: cfg.baseRegistry}
	if cfg.blockingPoolSize > 0 {
		c.blockingSem = make(chan struct{}, cfg.blockingPoolSize)
	}
	c.workers = make([]*worker, cfg.workerCount)
	for i := range c.workers {
		w := newWorker(i)
		c.workers[i] = w
		go w.loop()
	}
	return c
}

// Shutdown signals every worker's drain loop to stop and returns without
// waiting for them. A drain already in progress runs on until it has no
// runnable segment left, and a worker that has drains pending may still
// start some of them before it observes the stop.
func (c *Controller) Shutdown() {
	for _, w := range c.workers {
		w.stop()
	}
}

func (c *Controller) pickWorker() *worker {
	n := c.nextWorker.Add(1) - 1
	return c.workers[n%uint64(len(c.workers))]
}

// Start begins a new Execution on a round-robin-selected worker, running
// initialAction as its first user segment. onError (optional) receives any
// *UserError surfacing from an unhandled segment panic or Promise failure
// reaching the end of its chain; onComplete (optional) runs once the
// Execution reaches done — either because its segment stream ran durably
// empty or because something in its chain called Execution.Complete
// explicitly — before close hooks. registryInit (optional) seeds the
// Execution's overlay registry before the registry-scoped interceptor
// snapshot is taken and initialAction runs.
func (c *Controller) Start(initialAction func(), onError func(error), onComplete func(), registryInit func(*Execution)) *Execution {
	e := &Execution{
		id:         ulid.Make(),
		stream:     newStream(),
		overlay:    c.baseRegistry,
		onError:    onError,
		logger:     c.logger,
		controller: c,
	}
	e.onComplete = onComplete
	e.worker = c.pickWorker()

	if registryInit != nil {
		registryInit(e)
	}

	e.registryInterceptors = GetAll[Interceptor](e.overlay)

	e.enqueueUser(func() {
		if initialAction != nil {
			initialAction()
		}
	})
	return e
}

func (c *Controller) acquireBlockingSlot() {
	if c.blockingSem != nil {
		c.blockingSem <- struct{}{}
	}
}

func (c *Controller) releaseBlockingSlot() {
	if c.blockingSem != nil {
		<-c.blockingSem
	}
}

// worker is a single dedicated goroutine draining a round-robin-assigned
// set of Executions. Each Execution always drains on the worker it was
// started on; workers never steal each other's pending Executions.
type worker struct {
	id      int
	pending chan *Execution
	quit    chan struct{}
	mu      sync.Mutex
	queued  map[*Execution]bool
}

func newWorker(id int) *worker {
	return &worker{
		id:      id,
		pending: make(chan *Execution, 1024),
		quit:    make(chan struct{}),
		queued:  make(map[*Execution]bool),
	}
}

// scheduleDrain enqueues e for this worker to drain, coalescing repeated
// requests for the same Execution that are already pending.
func (w *worker) scheduleDrain(e *Execution) {
	w.mu.Lock()
	if w.queued[e] {
		w.mu.Unlock()
		return
	}
	w.queued[e] = true
	w.mu.Unlock()

	select {
	case w.pending <- e:
	case <-w.quit:
	}
}

func (w *worker) loop() {
	for {
		select {
		case e := <-w.pending:
			w.mu.Lock()
			delete(w.queued, e)
			w.mu.Unlock()
			e.drain()
		case <-w.quit:
			return
		}
	}
}

func (w *worker) stop() {
	close(w.quit)
}

// Package simvm is a toy managed runtime for exercising the JDWP engine
// without a real VM. Worker threads run a fixed method step by step, hit
// breakpoints planted by the debugger, throw exceptions and die; the runtime
// implements jdwp.VM so that suspension requests actually stop them.
package simvm

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/DataExMachina-dev/side-eye-jdwp/jdwp"
)

// Config shapes the simulated program.
type Config struct {
	// Threads is the number of worker threads started.
	Threads int
	// Steps is how many code indices each worker executes before it dies.
	Steps int
	// Tick is the time one step takes.
	Tick time.Duration
	// ThrowEvery makes a worker throw on every n-th step. Zero never throws.
	ThrowEvery int
	// SuspendOnStart suspends the VM when VMStart is posted.
	SuspendOnStart bool
}

type class struct {
	id        jdwp.RefTypeID
	tag       jdwp.TypeTag
	signature string
	status    jdwp.ClassStatus
}

// The program every worker runs: Worker.run, codeLen instructions long.
const (
	mainClassID      jdwp.RefTypeID = 0x100
	workerClassID    jdwp.RefTypeID = 0x101
	exceptionClassID jdwp.RefTypeID = 0x102
	runnableClassID  jdwp.RefTypeID = 0x103

	runMethodID jdwp.MethodID = 1
	codeLen                   = 8
	catchIndex                = codeLen - 1

	mainThreadID  jdwp.ObjectID = 1
	firstWorkerID jdwp.ObjectID = 0x1000
	firstObjectID jdwp.ObjectID = 0x2000
)

var program = []class{
	{mainClassID, jdwp.TypeTagClass, "Lcom/example/Main;", jdwp.ClassStatusVerified | jdwp.ClassStatusPrepared | jdwp.ClassStatusInitialized},
	{runnableClassID, jdwp.TypeTagInterface, "Ljava/lang/Runnable;", jdwp.ClassStatusVerified | jdwp.ClassStatusPrepared},
	{workerClassID, jdwp.TypeTagClass, "Lcom/example/Worker;", jdwp.ClassStatusVerified | jdwp.ClassStatusPrepared},
	{exceptionClassID, jdwp.TypeTagClass, "Ljava/lang/IllegalStateException;", jdwp.ClassStatusVerified | jdwp.ClassStatusPrepared},
}

// RunLocation returns the location of index idx in Worker.run.
func RunLocation(idx uint64) jdwp.Location {
	return jdwp.Location{TypeTag: jdwp.TypeTagClass, ClassID: workerClassID, MethodID: runMethodID, Index: idx}
}

type thread struct {
	id   jdwp.ObjectID
	name string
	// this is the Worker instance the thread runs.
	this jdwp.ObjectID
	// released is set by SuspendSelf when it gave up the post lock.
	released bool
}

// Runtime is the simulated VM. It implements jdwp.VM,
// jdwp.EventRequestObserver and jdwp.CommandHandler.
type Runtime struct {
	log logr.Logger
	cfg Config

	// postMu serializes calls into the engine's Post methods so that
	// ThreadSelfID knows which thread is posting. poster is guarded by it.
	postMu sync.Mutex
	poster *thread

	stopOnce sync.Once
	stop     chan struct{}

	mu struct {
		sync.Mutex
		suspendCount int
		// resumed is closed and replaced by ResumeAllThreads.
		resumed     chan struct{}
		threads     map[jdwp.ObjectID]*thread
		classes     map[jdwp.RefTypeID]class
		nextObject  jdwp.ObjectID
		breakpoints map[jdwp.Location]int
		entries     int
		exitStatus  int32
	}
}

var (
	_ jdwp.VM                   = (*Runtime)(nil)
	_ jdwp.EventRequestObserver = (*Runtime)(nil)
	_ jdwp.CommandHandler       = (*Runtime)(nil)
)

func New(log logr.Logger, cfg Config) *Runtime {
	rt := &Runtime{
		log:  log,
		cfg:  cfg,
		stop: make(chan struct{}),
	}
	rt.mu.resumed = make(chan struct{})
	rt.mu.threads = map[jdwp.ObjectID]*thread{
		mainThreadID: {id: mainThreadID, name: "main"},
	}
	rt.mu.classes = make(map[jdwp.RefTypeID]class)
	rt.mu.nextObject = firstObjectID
	rt.mu.breakpoints = make(map[jdwp.Location]int)
	return rt
}

// Run executes the program against e and posts VM death when every worker
// has finished or the debugger asked the VM to exit. It returns the exit
// status.
func (rt *Runtime) Run(ctx context.Context, e *jdwp.Engine) int32 {
	defer rt.halt()
	rt.mu.Lock()
	main := rt.mu.threads[mainThreadID]
	rt.mu.Unlock()

	rt.post(main, func() bool { return e.PostVMStart(rt.cfg.SuspendOnStart) })
	for _, c := range program {
		rt.mu.Lock()
		rt.mu.classes[c.id] = c
		rt.mu.Unlock()
		rt.post(main, func() bool { return e.PostClassPrepare(c.tag, c.id, c.signature, c.status) })
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, rt.halt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < rt.cfg.Threads; i++ {
		t := rt.newThread(i)
		g.Go(func() error {
			rt.runWorker(ctx, e, t)
			return nil
		})
	}
	_ = g.Wait()

	e.PostVMDeath()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.log.Info("vm exited", "status", rt.mu.exitStatus)
	return rt.mu.exitStatus
}

func (rt *Runtime) newThread(i int) *thread {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t := &thread{
		id:   firstWorkerID + jdwp.ObjectID(i),
		name: "worker-" + strconv.Itoa(i),
		this: rt.newObjectLocked(),
	}
	rt.mu.threads[t.id] = t
	return t
}

func (rt *Runtime) newObjectLocked() jdwp.ObjectID {
	id := rt.mu.nextObject
	rt.mu.nextObject++
	return id
}

func (rt *Runtime) runWorker(ctx context.Context, e *jdwp.Engine, t *thread) {
	log := rt.log.WithValues("thread", t.name)
	rt.post(t, func() bool { return e.PostThreadChange(t.id, true) })
	defer func() {
		rt.post(t, func() bool { return e.PostThreadChange(t.id, false) })
		rt.mu.Lock()
		delete(rt.mu.threads, t.id)
		rt.mu.Unlock()
		log.V(1).Info("thread died")
	}()

	for step := 0; step < rt.cfg.Steps; step++ {
		if !rt.safepoint() {
			return
		}
		loc := RunLocation(uint64(step % codeLen))
		var flags jdwp.LocationEventFlags
		rt.mu.Lock()
		if loc.Index == 0 && rt.mu.entries > 0 {
			flags |= jdwp.LocMethodEntry
		}
		if rt.mu.breakpoints[loc] > 0 {
			flags |= jdwp.LocBreakpoint
		}
		rt.mu.Unlock()
		if flags != 0 {
			rt.post(t, func() bool { return e.PostLocationEvent(&loc, t.this, flags) })
		}

		if rt.cfg.ThrowEvery > 0 && (step+1)%rt.cfg.ThrowEvery == 0 {
			rt.throw(e, t, loc, step)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(rt.cfg.Tick):
		}
	}
}

// throw raises an IllegalStateException at loc. Every other throw is caught
// at the end of the method.
func (rt *Runtime) throw(e *jdwp.Engine, t *thread, loc jdwp.Location, step int) {
	rt.mu.Lock()
	excep := rt.newObjectLocked()
	rt.mu.Unlock()
	var catchLoc *jdwp.Location
	if (step/rt.cfg.ThrowEvery)%2 == 1 {
		l := RunLocation(catchIndex)
		catchLoc = &l
	}
	rt.post(t, func() bool {
		return e.PostException(&loc, excep, exceptionClassID, catchLoc, t.this)
	})
}

// post calls fn, which posts an event to the engine, on behalf of t.
func (rt *Runtime) post(t *thread, fn func() bool) bool {
	rt.postMu.Lock()
	rt.poster = t
	t.released = false
	ok := fn()
	if !t.released {
		rt.poster = nil
		rt.postMu.Unlock()
	}
	return ok
}

// safepoint blocks while the VM is suspended. It reports false once the VM
// is halting.
func (rt *Runtime) safepoint() bool {
	for {
		rt.mu.Lock()
		if rt.mu.suspendCount == 0 {
			rt.mu.Unlock()
			return !rt.halted()
		}
		resumed := rt.mu.resumed
		rt.mu.Unlock()
		select {
		case <-resumed:
		case <-rt.stop:
			return false
		}
	}
}

func (rt *Runtime) halt() {
	rt.stopOnce.Do(func() { close(rt.stop) })
}

func (rt *Runtime) halted() bool {
	select {
	case <-rt.stop:
		return true
	default:
		return false
	}
}

// ThreadSelfID implements jdwp.VM. The engine only calls it from inside a
// Post method, with postMu held by the posting thread.
func (rt *Runtime) ThreadSelfID() jdwp.ObjectID {
	if rt.poster == nil {
		return 0
	}
	return rt.poster.id
}

func (rt *Runtime) SuspendAllThreads() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.mu.suspendCount++
	rt.log.V(1).Info("suspend all", "count", rt.mu.suspendCount)
}

func (rt *Runtime) ResumeAllThreads() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.mu.suspendCount = 0
	close(rt.mu.resumed)
	rt.mu.resumed = make(chan struct{})
	rt.log.V(1).Info("resume all")
}

// SuspendSelf implements jdwp.VM. The posting thread gives up postMu so other
// threads can keep reporting events while it is parked.
func (rt *Runtime) SuspendSelf(parked func()) {
	t := rt.poster
	if t != nil {
		t.released = true
		rt.poster = nil
		rt.postMu.Unlock()
	}
	rt.mu.Lock()
	resumed := rt.mu.resumed
	rt.mu.Unlock()
	parked()
	select {
	case <-resumed:
	case <-rt.stop:
	}
}

func (rt *Runtime) ClassDescriptor(id jdwp.RefTypeID) (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c, ok := rt.mu.classes[id]
	return c.signature, ok
}

// Exit implements jdwp.VM. Workers stop at their next safepoint and Run
// returns status.
func (rt *Runtime) Exit(status int32) {
	rt.mu.Lock()
	rt.mu.exitStatus = status
	rt.mu.Unlock()
	rt.halt()
}

// EventRequestAdded plants breakpoints and enables method entry reporting.
func (rt *Runtime) EventRequestAdded(req jdwp.EventRequest) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	switch req.Kind {
	case jdwp.EventBreakpoint:
		for _, m := range req.Modifiers {
			if m.Kind == jdwp.ModLocationOnly {
				rt.mu.breakpoints[m.Location]++
			}
		}
	case jdwp.EventMethodEntry:
		rt.mu.entries++
	}
}

func (rt *Runtime) EventRequestRemoved(req jdwp.EventRequest) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	switch req.Kind {
	case jdwp.EventBreakpoint:
		for _, m := range req.Modifiers {
			if m.Kind != jdwp.ModLocationOnly {
				continue
			}
			if rt.mu.breakpoints[m.Location]--; rt.mu.breakpoints[m.Location] <= 0 {
				delete(rt.mu.breakpoints, m.Location)
			}
		}
	case jdwp.EventMethodEntry:
		rt.mu.entries--
	}
}

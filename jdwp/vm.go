package jdwp

// VM is the runtime the engine is embedded in. The engine never suspends
// threads itself; it asks the VM to.
type VM interface {
	// ThreadSelfID returns the thread object id of the calling thread.
	ThreadSelfID() ObjectID
	// SuspendAllThreads suspends every application thread except the
	// caller.
	SuspendAllThreads()
	// ResumeAllThreads undoes SuspendAllThreads and any debugger-requested
	// suspension.
	ResumeAllThreads()
	// SuspendSelf parks the calling thread until the debugger resumes it.
	// parked must be called once the thread is actually stopped; SuspendSelf
	// then keeps blocking until the thread is resumed.
	SuspendSelf(parked func())
	// ClassDescriptor returns the JNI signature of a loaded type, e.g.
	// "Ljava/lang/String;".
	ClassDescriptor(id RefTypeID) (string, bool)
	// Exit terminates the VM at the debugger's request.
	Exit(status int32)
}

// NopVM is a VM that suspends nothing. SuspendSelf reports the thread as
// parked and returns at once.
type NopVM struct{}

var _ VM = NopVM{}

func (NopVM) ThreadSelfID() ObjectID                   { return 0 }
func (NopVM) SuspendAllThreads()                       {}
func (NopVM) ResumeAllThreads()                        {}
func (NopVM) SuspendSelf(parked func())                { parked() }
func (NopVM) ClassDescriptor(RefTypeID) (string, bool) { return "", false }
func (NopVM) Exit(int32)                               {}

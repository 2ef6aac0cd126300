// Package carrier implements the per-worker scheduling engine of a
// user-space M:N coroutine runtime.
//
// # Architecture
//
// A [Carrier] binds one Go goroutine (standing in for the OS thread of the
// source design) to a distinguished run-loop task, and orchestrates task
// lifecycle (create, run, park, resume, exit), cooperative context
// switching, work stealing across carriers, and the epilog bookkeeping that
// must run after every resume of the run-loop task.
//
// Tasks are created with [Carrier.Spawn], which both allocates (or recycles)
// a [Task] and runs it synchronously to its first park, mirroring the
// "spawn returns after the child's first suspension point" idiom. Parking
// and resumption happen through [ResumeEntry] values dispatched by a
// [Scheduler], which may steal a parked task onto a different [Carrier]
// before resuming it.
//
// An [Engine] is the process-wide collaborator: it tracks the live task
// count, a cross-carrier task cache, and the shutdown flag that every
// carrier consults before accepting new work.
//
// # Concurrency model
//
// Exactly one task executes per carrier at any instant; there is no
// preemption. All suspension points are explicit: [Carrier.Schedule],
// [Carrier.Yield], or a blocking I/O/timer wrapper. The low-level context
// switch is the only point at which the logical owner of a goroutine-backed
// coroutine stack changes, and it may change to a different carrier
// entirely if the outgoing task is stolen before it resumes; callers must
// re-resolve [Engine.CurrentCarrier] rather than assume thread affinity
// survives a switch.
//
// # Platform support
//
// The event pump ([Pump]) that backs [Carrier.RegisterEvent] multiplexes
// readiness notifications using platform-native mechanisms: epoll on Linux,
// kqueue on Darwin/BSD, and IOCP on Windows.
//
// # Logging
//
// Structured logging is exposed through a package-level
// logiface.Logger, configurable via [SetLogger]. By default logging is a
// no-op.
package carrier

// Package engine turns an asynchronous, callback-driven transport into a
// synchronous, timeout-bounded request/response protocol.
//
// A command goes through four remote phases: the remote engine signals it is
// ready, the dispatch is sent and reported running, a result arrives, and
// eventually one side shuts down. The Engine keeps a single state record
// guarded by one mutex with one condition variable that is broadcast on every
// transition; blocking operations wait on it against an absolute deadline.
//
// Command flow:
//
//	Idle → AwaitingReady → Dispatched → AwaitingRunning → AwaitingResult → Completed
//	           ↓                             ↓                  ↓
//	           └──── TimedOut | RemoteException | LocalShutdown | RemoteShutdown
//
// Timeouts:
//   - A timeout below one second means "do not block": the wait returns at
//     once without checking anything.
//   - A result carrying changeTimeout=N (N > 0) makes the engine wait again
//     for up to N seconds instead of returning. A malformed value is logged
//     and the wait is repeated with the original timeout. There is no cap
//     unless WithMaxTimeoutExtensions is used.
//
// Abort precedence when a wait ends early: local shutdown, then remote
// shutdown, then remote exception.
//
// Concurrency:
//   - Transport callbacks may arrive on any goroutine.
//   - PerformCommand calls are not serialized against each other. All callers
//     share one ready/running/result flag set, so an application must keep at
//     most one command in flight (see the driver package).
package engine

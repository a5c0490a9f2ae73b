// Package subscription runs live subscriptions in the background.
//
// Each subscription is a Task: a goroutine that reads a driver.Feed,
// translates each notification into an Event and sends it through a
// Sender/Receiver pipe to whoever consumes the stream. The Manager owns the
// registry of running tasks.
//
// # Task lifecycle
//
//	Starting -> Running -> Cancelling -> Terminated   (Stop, context cancel)
//	                    \-> Ending    -> Terminated   (feed ended, receiver gone,
//	                                                   translation failed)
//
// Whatever the path, a task's last steps are closing its feed and pipe and
// asking the manager to forget it, so an entry never outlives its task.
//
// # Cancellation
//
// Stop is two-phase: the stop channel is closed, then the task's context is
// cancelled, and Stop returns only after the goroutine has finished. Every
// blocking point of the task selects on both, so the wait is bounded.
//
// # Registry
//
// Cancel and Complete race on the same entry: Cancel from a caller, Complete
// from the task itself as it exits. Both remove-if-present under the
// manager's mutex and never block while holding it.
package subscription

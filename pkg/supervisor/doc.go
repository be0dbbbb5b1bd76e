// Package supervisor launches the proxy binary once and tracks it through a
// process handle.
//
// The lifecycle is NotStarted, Launching, Running and then Exited or
// Crashed. A failed launch returns to NotStarted with a reason, as does an
// Inhibit call when provisioning or config synthesis failed. The process is
// never restarted.
//
// A reap goroutine waits on the child so it does not linger as a zombie.
// The supervisor's own state only advances when it is queried.
package supervisor

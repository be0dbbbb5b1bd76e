// Package provision makes sure the proxy executable exists before launch.
//
// Ensure is a no-op when the target already exists. Otherwise it walks an
// ordered chain of Strategy values, by default curl, wget and an in-process
// HTTP download with a linked zip reader, until one of them leaves a regular
// file at the target. The file is then made executable and the archive is
// removed.
//
// A failure of the whole chain returns an error matching ErrUnavailable.
// Callers treat it as non-fatal: the HTTP facade still starts and reports
// the proxy as not running.
//
// Two processes calling Ensure on the same work directory at once are not
// coordinated.
package provision

// Package pending correlates in-flight tool invocations with results supplied
// out of band by the hosting application.
//
// Each call owns a single-use completion slot keyed by a generated id. The slot
// is resolved, cancelled or removed exactly once; whichever happens first takes
// the entry out of the table, so a late completion for a call that already timed
// out is reported as ErrNotFound instead of reaching a waiter that is gone.
package pending

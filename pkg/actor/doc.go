// Package actor implements a lightweight actor runtime. Every actor runs on its own goroutine
// and owns a mailbox that supports selective receive: an actor may wait for the first message
// matching a predicate while earlier messages stay queued in order.
//
// Actors can be linked, so that the abnormal or normal death of one kills the other, or watched,
// so that the watcher receives an ExitMessage without dying. Names are resolved through a
// per-system registry and handles hide whether an actor is local or reached through a transport.
//
// Higher level behaviors are built on top of this package: see the server and supervisor
// packages.
package actor

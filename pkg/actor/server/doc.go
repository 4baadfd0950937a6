// Package server implements request/reply servers on top of actors. A server runs a Handler
// whose callbacks receive calls, casts and other messages one at a time. Call correlates each
// request with its reply through a unique id and watches the target, so a caller is never left
// waiting on a server that has died.
package server

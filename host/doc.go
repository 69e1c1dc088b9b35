// Package host is the embeddable agent runtime: it turns one
// registered handler function into an HTTP service with an invocation
// endpoint, a liveness endpoint, and first-class streaming responses.
//
// A handler receives the invocation payload (and optionally the
// request context) and returns either a plain value, served as a
// single JSON body, or a lazy sequence (Stream or a channel), served
// as Server-Sent Events. Background work is tracked through the tasks
// registry, which drives the status reported on /ping.
package host

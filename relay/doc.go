// Package relay moves a single message through the node: validate the
// sender, forward to the receiver (a connected platform or a remote node),
// and shape the response for the caller.
//
// The three steps are modeled as distinct types so they can only run in
// order. A Received request must be validated before it can be forwarded,
// and only a Forwarded request can produce a response. Skipping a step is a
// compile error rather than a runtime surprise.
package relay

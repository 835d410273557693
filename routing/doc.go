// Package routing decides where a message goes and what it must look like
// when it gets there. It resolves receivers to either a locally connected
// platform or a remote node found in the network directory, enforces
// sender authentication and per-platform access rules, and rewrites request
// headers and proxied resource references for the next hop.
package routing

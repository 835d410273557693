// Package api exposes the node's HTTP surface: the SCPI module endpoints
// platforms call, the node-to-node message endpoint, the registration
// handshake, versions discovery, the access-rules API, registry info
// endpoints and admin provisioning.
//
// Controllers are thin: they parse the SCPI routing headers and path into a
// protocol envelope and drive the relay pipeline, leaving validation,
// signatures and forwarding to the relay and routing packages. Every
// controller implements RouteRegistrar and is mounted on a shared Server.
package api

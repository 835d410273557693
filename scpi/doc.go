// Package scpi defines the SCPI protocol data model shared by the node's
// routing core and its HTTP endpoint layer: party roles, module identifiers,
// the request envelope exchanged between nodes, the standard response wrapper
// and the protocol error taxonomy.
//
// Charging-domain payloads (locations, sessions, CDRs, ...) are deliberately
// opaque: bodies travel as raw JSON and are never interpreted by the node.
package scpi

// Package registry provides read access to the network-wide party directory:
// the on-chain registry contract that maps a (country code, party id) pair to
// the operator address and domain of the node currently representing that
// party. The node consults it to decide whether a receiver is remote and to
// check signatory addresses against the registered party and operator.
package registry

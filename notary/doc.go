// Package notary implements the party-level, end-to-end message signature
// scheme used on the Smart Charging Network. A signature covers a canonical
// subset of routing headers plus the message body, detached from transport
// framing so it stays valid across node hops.
//
// Nodes that must rewrite a single field in transit (a callback URL, a
// pagination Link, a creation Location) cannot re-sign with the original
// author's key. Instead they "stash" the current signature together with the
// original values of the rewritten fields and sign the modified message with
// their own key. Verifiers replay the stash chain backwards, checking every
// signature in it, so the rewritten message stays third-party verifiable all
// the way to the original author.
package notary

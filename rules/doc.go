// Package rules manages per-platform message rules: the signature
// requirement flag and the whitelist/blacklist of counterparties allowed or
// denied per module. At most one of the two lists can be active for a
// platform at any time; every mutation runs under a per-platform lock so
// concurrent updates cannot leave both active.
package rules

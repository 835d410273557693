package notary

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignableHeaders is the canonical subset of routing headers covered by a
// party-level signature: the correlation id and both party identities on
// requests, plus the pagination/location headers on responses when present.
type SignableHeaders struct {
	CorrelationID   string `json:"correlation_id,omitempty"`
	FromCountryCode string `json:"from_country_code,omitempty"`
	FromPartyID     string `json:"from_party_id,omitempty"`
	ToCountryCode   string `json:"to_country_code,omitempty"`
	ToPartyID       string `json:"to_party_id,omitempty"`
	Limit           string `json:"limit,omitempty"`
	TotalCount      string `json:"total_count,omitempty"`
	Link            string `json:"link,omitempty"`
	Location        string `json:"location,omitempty"`
}

// ValuesToSign is the (headers, params, body) tuple a signature covers.
// Body may be any JSON-serializable value; it is canonicalized before
// hashing so serialization quirks do not break verification.
type ValuesToSign struct {
	Headers SignableHeaders   `json:"headers"`
	Params  map[string]string `json:"params,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Rewrite records one stashed signature level: the signature that was valid
// before a node rewrote the named fields, and the fields' original values so
// a verifier can reconstruct the message that signature covered.
type Rewrite struct {
	RewrittenFields map[string]any `json:"rewritten_fields"`
	Hash            string         `json:"hash"`
	RSV             string         `json:"rsv"`
	Signatory       string         `json:"signatory"`
}

// Signature is a detached party-level signature, possibly carrying a chain
// of stashed rewrites underneath the current level.
type Signature struct {
	Hash      string    `json:"hash"`
	RSV       string    `json:"rsv"`
	Signatory string    `json:"signatory"`
	Rewrites  []Rewrite `json:"rewrites,omitempty"`
}

// Result is the outcome of verifying a signature chain. Signatory is the
// outermost signer's checksummed address; for rewritten messages that is the
// node which performed the last rewrite, not the original author.
type Result struct {
	Valid     bool
	Signatory string
	Err       error
}

// Deserialize decodes a signature from its header/body string form.
func Deserialize(s string) (*Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	var sig Signature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("parsing signature: %w", err)
	}
	return &sig, nil
}

// Serialize encodes the signature for transport in a header or body field.
func (s *Signature) Serialize() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Sign computes the signature over values with the given secp256k1 private
// key (hex, with or without 0x prefix), replacing the current level but
// leaving any stashed rewrites in place.
func (s *Signature) Sign(values ValuesToSign, privateKeyHex string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	message, err := canonicalMessage(values)
	if err != nil {
		return err
	}

	sigBytes, err := crypto.Sign(personalHash(message), key)
	if err != nil {
		return fmt.Errorf("signing message: %w", err)
	}

	s.Hash = hex.EncodeToString(crypto.Keccak256(message))
	s.RSV = encodeRSV(sigBytes)
	s.Signatory = crypto.PubkeyToAddress(key.PublicKey).Hex()
	return nil
}

// Verify checks the whole signature chain against values: the current level
// first, then each stashed level with its rewritten fields restored to their
// original values.
func (s *Signature) Verify(values ValuesToSign) Result {
	tree, err := toTree(values)
	if err != nil {
		return Result{Err: err}
	}

	if err := verifyLevel(tree, s.Hash, s.RSV, s.Signatory); err != nil {
		return Result{Signatory: s.Signatory, Err: err}
	}

	for i := len(s.Rewrites) - 1; i >= 0; i-- {
		rw := s.Rewrites[i]
		for path, original := range rw.RewrittenFields {
			if err := setPath(tree, path, original); err != nil {
				return Result{Signatory: s.Signatory, Err: err}
			}
		}
		if err := verifyLevel(tree, rw.Hash, rw.RSV, rw.Signatory); err != nil {
			return Result{Signatory: s.Signatory, Err: fmt.Errorf("stashed signature %d: %w", i, err)}
		}
	}

	return Result{Valid: true, Signatory: s.Signatory}
}

// Stash pushes the current signature level onto the rewrite chain, recording
// the original values of the fields about to change. The caller signs the
// modified message afterwards with its own key.
func (s *Signature) Stash(rewrittenFields map[string]any) {
	s.Rewrites = append(s.Rewrites, Rewrite{
		RewrittenFields: rewrittenFields,
		Hash:            s.Hash,
		RSV:             s.RSV,
		Signatory:       s.Signatory,
	})
	s.Hash = ""
	s.RSV = ""
	s.Signatory = ""
}

func verifyLevel(tree map[string]any, hashHex, rsv, signatory string) error {
	message, err := marshalCanonical(tree)
	if err != nil {
		return err
	}

	if hex.EncodeToString(crypto.Keccak256(message)) != strings.TrimPrefix(hashHex, "0x") {
		return fmt.Errorf("message hash mismatch")
	}

	sigBytes, err := decodeRSV(rsv)
	if err != nil {
		return err
	}

	pub, err := crypto.SigToPub(personalHash(message), sigBytes)
	if err != nil {
		return fmt.Errorf("recovering signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(signatory) {
		return fmt.Errorf("recovered signer %s does not match signatory %s", recovered.Hex(), signatory)
	}
	return nil
}

// toTree round-trips values through JSON into a generic tree with
// deterministic (sorted-key) marshaling, preserving number literals.
func toTree(values ValuesToSign) (map[string]any, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("serializing values: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalizing values: %w", err)
	}
	return tree, nil
}

func marshalCanonical(tree map[string]any) ([]byte, error) {
	// encoding/json sorts map keys, which is the canonical form.
	return json.Marshal(tree)
}

func canonicalMessage(values ValuesToSign) ([]byte, error) {
	tree, err := toTree(values)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(tree)
}

// personalHash hashes a message with the Ethereum personal-message prefix.
func personalHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// encodeRSV encodes a 65-byte recoverable signature as r||s||v hex with the
// legacy v offset of 27, matching signatures produced by web3 wallets.
func encodeRSV(sig []byte) string {
	out := make([]byte, 65)
	copy(out, sig)
	out[64] += 27
	return hex.EncodeToString(out)
}

func decodeRSV(rsv string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(rsv, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding rsv: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("expected 65-byte signature, got %d", len(raw))
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	return raw, nil
}

// setPath writes value at a bracket-notation JSON path, e.g.
// $['body']['response_url'], creating no intermediate nodes: every segment
// but the last must already exist as an object.
func setPath(tree map[string]any, path string, value any) error {
	keys, err := parsePath(path)
	if err != nil {
		return err
	}

	node := tree
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			return fmt.Errorf("path %s: segment %q is not an object", path, key)
		}
		node = child
	}

	last := keys[len(keys)-1]
	if value == nil {
		delete(node, last)
		return nil
	}
	node[last] = value
	return nil
}

func parsePath(path string) ([]string, error) {
	rest := strings.TrimPrefix(path, "$")
	if rest == path {
		return nil, fmt.Errorf("path %q must start with $", path)
	}

	var keys []string
	for rest != "" {
		if !strings.HasPrefix(rest, "['") {
			return nil, fmt.Errorf("malformed path %q", path)
		}
		end := strings.Index(rest, "']")
		if end < 0 {
			return nil, fmt.Errorf("malformed path %q", path)
		}
		keys = append(keys, rest[2:end])
		rest = rest[end+2:]
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty path %q", path)
	}
	return keys, nil
}

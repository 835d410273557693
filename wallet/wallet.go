// Package wallet holds the node's own secp256k1 identity and implements the
// node-to-node message signature scheme: a personal-message ECDSA signature
// over the serialized request envelope, proving a forwarded message really
// originated from the sending party's registered node operator.
//
// This is deliberately distinct from the party-level notary signatures:
// wallet signatures answer "which node sent this", notary signatures answer
// "which party authored this content".
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Smart-Charging/scn-node/registry"
	"github.com/Smart-Charging/scn-node/scpi"
)

// Wallet signs and verifies inter-node messages with the node's private key.
type Wallet struct {
	key      *ecdsa.PrivateKey
	registry registry.Client
}

// New parses the node's private key (hex, 0x prefix optional) and binds the
// directory client used to resolve claimed senders to operator addresses.
func New(privateKeyHex string, reg registry.Client) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing node private key: %w", err)
	}
	return &Wallet{key: key, registry: reg}, nil
}

// Address returns the node's checksummed operator address.
func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// Sign signs an arbitrary string, typically the JSON body of an inter-node
// message, returning the r||s||v signature as plain hex.
func (w *Wallet) Sign(message string) (string, error) {
	sig, err := crypto.Sign(personalHash(message), w.key)
	if err != nil {
		return "", fmt.Errorf("signing node message: %w", err)
	}
	out := make([]byte, 65)
	copy(out, sig)
	out[64] += 27
	return hex.EncodeToString(out), nil
}

// Verify checks that message was signed by the node operator currently
// registered for the claimed sender. Failures are reported as hub
// connection-class errors: from the caller's perspective the network trust
// chain could not be established.
func (w *Wallet) Verify(ctx context.Context, message, signature string, sender scpi.BasicRole) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(raw) != 65 {
		return scpi.ErrConnectionProblem("Could not decode SCN-Signature of request")
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}

	pub, err := crypto.SigToPub(personalHash(message), raw)
	if err != nil {
		return scpi.ErrConnectionProblem("Could not recover signer of SCN-Signature: %v", err)
	}
	signer := crypto.PubkeyToAddress(*pub)

	record, err := w.registry.NodeOf(ctx, sender.Country, sender.ID)
	if err != nil {
		return scpi.ErrConnectionProblem("Registry lookup for %s failed: %v", sender, err)
	}

	if signer != record.Operator {
		return scpi.ErrConnectionProblem("Could not verify SCN-Signature of request: signer %s is not operator of %s", signer.Hex(), sender)
	}
	return nil
}

func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

package notary

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func exampleValues() ValuesToSign {
	return ValuesToSign{
		Headers: SignableHeaders{
			CorrelationID:   "corr-1",
			FromCountryCode: "DE",
			FromPartyID:     "ABC",
			ToCountryCode:   "CH",
			ToPartyID:       "XYZ",
		},
		Body: json.RawMessage(`{"response_url":"https://cpo.example.com/callback/42","token":"T1"}`),
	}
}

func TestSignAndVerify(t *testing.T) {
	keyHex, address := generateKey(t)

	var sig Signature
	require.NoError(t, sig.Sign(exampleValues(), keyHex))
	require.Equal(t, address, sig.Signatory)

	result := sig.Verify(exampleValues())
	require.NoError(t, result.Err)
	require.True(t, result.Valid)
	require.Equal(t, address, result.Signatory)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	keyHex, _ := generateKey(t)

	var sig Signature
	require.NoError(t, sig.Sign(exampleValues(), keyHex))

	tampered := exampleValues()
	tampered.Body = json.RawMessage(`{"response_url":"https://attacker.example.com","token":"T1"}`)

	result := sig.Verify(tampered)
	require.False(t, result.Valid)
	require.Error(t, result.Err)
}

func TestStashAndRewrite(t *testing.T) {
	partyKey, partyAddress := generateKey(t)
	nodeKey, nodeAddress := generateKey(t)

	original := exampleValues()
	var sig Signature
	require.NoError(t, sig.Sign(original, partyKey))

	// The node rewrites the callback URL to point through itself, stashing
	// the party's signature with the original value.
	rewritten := original
	rewritten.Body = json.RawMessage(`{"response_url":"https://node.example.com/scpi/sender/2.2/commands/START_SESSION/uid-1","token":"T1"}`)

	sig.Stash(map[string]any{
		"$['body']['response_url']": "https://cpo.example.com/callback/42",
	})
	require.NoError(t, sig.Sign(rewritten, nodeKey))

	result := sig.Verify(rewritten)
	require.NoError(t, result.Err)
	require.True(t, result.Valid)
	require.Equal(t, nodeAddress, result.Signatory)
	require.Len(t, sig.Rewrites, 1)
	require.Equal(t, partyAddress, sig.Rewrites[0].Signatory)
}

func TestStashedChainRejectsForgedOriginal(t *testing.T) {
	partyKey, _ := generateKey(t)
	nodeKey, _ := generateKey(t)

	original := exampleValues()
	var sig Signature
	require.NoError(t, sig.Sign(original, partyKey))

	rewritten := original
	rewritten.Body = json.RawMessage(`{"response_url":"https://node.example.com/cb/uid-1","token":"T1"}`)

	// Stash claims a different original value than the party actually signed.
	sig.Stash(map[string]any{
		"$['body']['response_url']": "https://wrong.example.com/callback",
	})
	require.NoError(t, sig.Sign(rewritten, nodeKey))

	result := sig.Verify(rewritten)
	require.False(t, result.Valid)
	require.Error(t, result.Err)
}

func TestSerializeRoundTrip(t *testing.T) {
	keyHex, _ := generateKey(t)

	var sig Signature
	require.NoError(t, sig.Sign(exampleValues(), keyHex))

	encoded, err := sig.Serialize()
	require.NoError(t, err)

	decoded, err := Deserialize(encoded)
	require.NoError(t, err)
	require.Equal(t, sig.Hash, decoded.Hash)
	require.Equal(t, sig.RSV, decoded.RSV)
	require.Equal(t, sig.Signatory, decoded.Signatory)

	result := decoded.Verify(exampleValues())
	require.True(t, result.Valid)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize("not base64!!")
	require.Error(t, err)
}

func TestResponseHeaderRewrite(t *testing.T) {
	platformKey, _ := generateKey(t)
	nodeKey, _ := generateKey(t)

	values := ValuesToSign{
		Headers: SignableHeaders{
			Limit:      "25",
			TotalCount: "100",
			Link:       "https://cpo.example.com/cdrs?offset=25&limit=25",
		},
		Body: json.RawMessage(`{"status_code":1000}`),
	}

	var sig Signature
	require.NoError(t, sig.Sign(values, platformKey))

	rewritten := values
	rewritten.Headers.Link = "https://node.example.com/scpi/sender/2.2/cdrs/page/7"

	sig.Stash(map[string]any{
		"$['headers']['link']": "https://cpo.example.com/cdrs?offset=25&limit=25",
	})
	require.NoError(t, sig.Sign(rewritten, nodeKey))

	result := sig.Verify(rewritten)
	require.NoError(t, result.Err)
	require.True(t, result.Valid)
}

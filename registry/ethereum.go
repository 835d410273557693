package registry

import (
	"context"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// registryABI covers the two read methods of the SCN Registry contract the
// node uses.
const registryABI = `[
  {"name":"getOperatorByScpi","type":"function","stateMutability":"view",
   "inputs":[{"name":"countryCode","type":"bytes2"},{"name":"partyId","type":"bytes3"}],
   "outputs":[{"name":"operator","type":"address"},{"name":"domain","type":"string"}]},
  {"name":"getPartyDetailsByScpi","type":"function","stateMutability":"view",
   "inputs":[{"name":"countryCode","type":"bytes2"},{"name":"partyId","type":"bytes3"}],
   "outputs":[{"name":"partyAddress","type":"address"},{"name":"operator","type":"address"}]}
]`

// EthClient resolves directory lookups against the SCN Registry smart
// contract through a JSON-RPC provider.
type EthClient struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
}

// Dial connects to a web3 provider and binds the registry contract at the
// given address.
func Dial(providerURL string, contract common.Address) (*EthClient, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parsing registry ABI: %w", err)
	}

	client, err := ethclient.Dial(providerURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to web3 provider: %w", err)
	}

	return &EthClient{client: client, contract: contract, abi: parsed}, nil
}

// NodeOf implements Client.
func (c *EthClient) NodeOf(ctx context.Context, countryCode, partyID string) (NodeRecord, error) {
	results, err := c.call(ctx, "getOperatorByScpi", countryCode, partyID)
	if err != nil {
		return NodeRecord{}, err
	}

	return NodeRecord{
		Operator: results[0].(common.Address),
		Domain:   results[1].(string),
	}, nil
}

// PartyDetailsOf implements Client.
func (c *EthClient) PartyDetailsOf(ctx context.Context, countryCode, partyID string) (PartyDetails, error) {
	results, err := c.call(ctx, "getPartyDetailsByScpi", countryCode, partyID)
	if err != nil {
		return PartyDetails{}, err
	}

	return PartyDetails{
		Address:  results[0].(common.Address),
		Operator: results[1].(common.Address),
	}, nil
}

func (c *EthClient) call(ctx context.Context, method, countryCode, partyID string) ([]any, error) {
	country, err := toBytes2(countryCode)
	if err != nil {
		return nil, err
	}
	party, err := toBytes3(partyID)
	if err != nil {
		return nil, err
	}

	data, err := c.abi.Pack(method, country, party)
	if err != nil {
		return nil, fmt.Errorf("packing %s call: %w", method, err)
	}

	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling registry %s: %w", method, err)
	}

	results, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s result: %w", method, err)
	}
	return results, nil
}

func toBytes2(s string) ([2]byte, error) {
	var out [2]byte
	if len(s) != 2 {
		return out, fmt.Errorf("country code must be 2 characters, got %q", s)
	}
	copy(out[:], strings.ToUpper(s))
	return out, nil
}

func toBytes3(s string) ([3]byte, error) {
	var out [3]byte
	if len(s) != 3 {
		return out, fmt.Errorf("party id must be 3 characters, got %q", s)
	}
	copy(out[:], strings.ToUpper(s))
	return out, nil
}

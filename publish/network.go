package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
)

var ErrNoAccounts = errors.New("node exposes no accounts")

type Network struct {
	Name    string `json:"name"`
	ChainID uint64 `json:"chain_id"`
}

var networkNames = map[uint64]string{
	1:        "mainnet",
	5:        "goerli",
	10:       "optimism",
	56:       "bnb",
	100:      "xdai",
	137:      "matic",
	8453:     "base",
	31337:    "hardhat",
	42161:    "arbitrum",
	43114:    "avalanche",
	80001:    "maticmum",
	80002:    "amoy",
	11155111: "sepolia",
}

func NetworkName(chainID uint64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return "unknown"
}

func GetNetwork(ctx context.Context, client *w3.Client) (Network, error) {
	var chainID uint64
	if err := client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
		return Network{}, fmt.Errorf("get chain id: %w", err)
	}
	return Network{Name: NetworkName(chainID), ChainID: chainID}, nil
}

// Accounts lists the accounts the node signs for.
func Accounts(ctx context.Context, client *w3.Client) ([]common.Address, error) {
	var accounts []common.Address
	if err := client.CallCtx(ctx, newRawCall("eth_accounts", &accounts)); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return accounts, nil
}

// DefaultAccount returns the first node account.
func DefaultAccount(ctx context.Context, client *w3.Client) (common.Address, error) {
	accounts, err := Accounts(ctx, client)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	return accounts[0], nil
}

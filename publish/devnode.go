package publish

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lmittmann/w3"
)

// NodeFlavor selects the namespace of the non-standard admin methods exposed
// by local fork nodes.
type NodeFlavor string

const (
	FlavorHardhat NodeFlavor = "hardhat"
	FlavorAnvil   NodeFlavor = "anvil"
)

// DefaultImpersonationBalance is credited to impersonated accounts so they can pay gas.
var DefaultImpersonationBalance = w3.I("1000000 ether")

func ParseNodeFlavor(s string) (NodeFlavor, error) {
	switch f := NodeFlavor(strings.ToLower(strings.TrimSpace(s))); f {
	case FlavorHardhat, FlavorAnvil:
		return f, nil
	case "":
		return FlavorHardhat, nil
	default:
		return "", fmt.Errorf("unsupported node flavor %q (hardhat|anvil)", s)
	}
}

func (f NodeFlavor) method(name string) string {
	return string(f) + "_" + name
}

func ImpersonateAccount(ctx context.Context, client *w3.Client, flavor NodeFlavor, addr common.Address) error {
	if err := client.CallCtx(ctx, newRawCall(flavor.method("impersonateAccount"), nil, addr)); err != nil {
		return fmt.Errorf("impersonate %s: %w", addr.Hex(), err)
	}
	return nil
}

func StopImpersonatingAccount(ctx context.Context, client *w3.Client, flavor NodeFlavor, addr common.Address) error {
	if err := client.CallCtx(ctx, newRawCall(flavor.method("stopImpersonatingAccount"), nil, addr)); err != nil {
		return fmt.Errorf("stop impersonating %s: %w", addr.Hex(), err)
	}
	return nil
}

func SetBalance(ctx context.Context, client *w3.Client, flavor NodeFlavor, addr common.Address, wei *big.Int) error {
	if err := client.CallCtx(ctx, newRawCall(flavor.method("setBalance"), nil, addr, hexutil.EncodeBig(wei))); err != nil {
		return fmt.Errorf("set balance of %s: %w", addr.Hex(), err)
	}
	return nil
}

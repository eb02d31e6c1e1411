package host

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

// Polygon is the host deployed on polygon mainnet.
var Polygon = w3.A("0x3E14dC1b13c488a8d5D310918780c983bD5982E7")

var FuncGetGovernance = w3.MustNewFunc(
	"getGovernance()", "address",
)

func Governance(ctx context.Context, d *publish.Deployer, host common.Address) (common.Address, error) {
	var gov common.Address
	if err := d.Call(ctx, host, FuncGetGovernance, nil, &gov); err != nil {
		return common.Address{}, fmt.Errorf("host %s getGovernance: %w", host.Hex(), err)
	}
	return gov, nil
}

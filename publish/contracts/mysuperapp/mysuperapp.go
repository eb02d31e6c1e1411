package mysuperapp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

const Name = "MySuperApp"

var (
	FuncMyVar       = w3.MustNewFunc("myVar()", "uint256")
	FuncDoSomething = w3.MustNewFunc("doSomething()", "bool")
)

func MyVar(ctx context.Context, d *publish.Deployer, app common.Address) (*big.Int, error) {
	var v *big.Int
	if err := d.Call(ctx, app, FuncMyVar, nil, &v); err != nil {
		return nil, fmt.Errorf("%s myVar: %w", app.Hex(), err)
	}
	return v, nil
}

func DoSomething(ctx context.Context, d *publish.Deployer, app common.Address) (common.Hash, error) {
	txHash, err := d.TransactFunc(ctx, app, FuncDoSomething)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s doSomething: %w", app.Hex(), err)
	}
	return txHash, nil
}

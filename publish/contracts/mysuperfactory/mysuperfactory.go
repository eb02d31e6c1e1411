package mysuperfactory

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

const Name = "MySuperFactory"

// DefaultConfigWord is the packed app-level bitmask handed to every new instance.
var DefaultConfigWord = big.NewInt(270582939649)

var (
	FuncCreateMySuperAppInstance = w3.MustNewFunc(
		"createMySuperAppInstance(address,uint256,string)", "",
	)
	FuncDeployedSuperApps = w3.MustNewFunc(
		"deployedSuperApps(string)", "address",
	)
)

type CreateArgs struct {
	Host       common.Address
	ConfigWord *big.Int
	Name       string
}

// EncodeConstructor returns the factory creation code bound to template.
func EncodeConstructor(artifact *publish.Artifact, template common.Address) ([]byte, error) {
	return artifact.DeployData(template)
}

func EncodeCreate(args CreateArgs) ([]byte, error) {
	return FuncCreateMySuperAppInstance.EncodeArgs(args.Host, args.ConfigWord, args.Name)
}

func CreateInstance(ctx context.Context, d *publish.Deployer, factory common.Address, args CreateArgs) (common.Hash, error) {
	data, err := EncodeCreate(args)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode createMySuperAppInstance: %w", err)
	}
	txHash, err := d.Transact(ctx, factory, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("createMySuperAppInstance %q: %w", args.Name, err)
	}
	return txHash, nil
}

func DeployedSuperApp(ctx context.Context, d *publish.Deployer, factory common.Address, name string) (common.Address, error) {
	var app common.Address
	if err := d.Call(ctx, factory, FuncDeployedSuperApps, []any{name}, &app); err != nil {
		return common.Address{}, fmt.Errorf("deployedSuperApps %q: %w", name, err)
	}
	return app, nil
}

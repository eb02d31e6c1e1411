package superapp

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperfactory"
)

// DeployContracts deploys the app template and then the factory bound to it.
// A failure after the template landed leaves the template on chain.
func DeployContracts(ctx context.Context, d *publish.Deployer, template, factory *publish.Artifact, logger log.Logger) (Deployment, error) {
	logger.Info("Deploying super app template", "contract", template.ContractName)
	templateAddr, err := deployPlain(ctx, d, template.ContractName, template.Bytecode)
	if err != nil {
		return Deployment{}, err
	}
	logger.Info("Deployed super app template", "contract", template.ContractName, "address", templateAddr)

	logger.Info("Deploying super factory", "contract", factory.ContractName, "template", templateAddr)
	code, err := mysuperfactory.EncodeConstructor(factory, templateAddr)
	if err != nil {
		return Deployment{}, err
	}
	factoryAddr, err := deployPlain(ctx, d, factory.ContractName, code)
	if err != nil {
		return Deployment{}, err
	}
	logger.Info("Deployed super factory", "contract", factory.ContractName, "address", factoryAddr)

	if factoryAddr == templateAddr {
		return Deployment{}, fmt.Errorf("factory and template share address %s", factoryAddr.Hex())
	}
	return Deployment{Template: templateAddr, Factory: factoryAddr}, nil
}

func deployPlain(ctx context.Context, d *publish.Deployer, name string, code []byte) (common.Address, error) {
	result, err := d.DeployAndWait(ctx, code)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", name, err)
	}
	if result.ContractAddress == (common.Address{}) {
		return common.Address{}, fmt.Errorf("deploy %s: no contract address in receipt %s", name, result.TxHash.Hex())
	}
	return result.ContractAddress, nil
}

package superapp

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperapp"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperfactory"
)

// CreateInstance asks factory for a new app called name and reads its address
// back from the factory's name registry.
func CreateInstance(ctx context.Context, d *publish.Deployer, factory, hostAddr common.Address, configWord *big.Int, name string) (Instance, error) {
	txHash, err := mysuperfactory.CreateInstance(ctx, d, factory, mysuperfactory.CreateArgs{
		Host:       hostAddr,
		ConfigWord: configWord,
		Name:       name,
	})
	if err != nil {
		return Instance{}, err
	}
	if _, err := d.WaitMined(ctx, txHash); err != nil {
		return Instance{}, fmt.Errorf("createMySuperAppInstance %q: %w", name, err)
	}

	app, err := mysuperfactory.DeployedSuperApp(ctx, d, factory, name)
	if err != nil {
		return Instance{}, err
	}
	if app == (common.Address{}) {
		return Instance{}, fmt.Errorf("%w: %q", ErrInstanceNotFound, name)
	}
	return Instance{Name: name, Address: app, TxHash: txHash}, nil
}

// CreateInstances creates one app per name, strictly one after another.
func CreateInstances(ctx context.Context, d *publish.Deployer, factory, hostAddr common.Address, configWord *big.Int, names []string, logger log.Logger) ([]Instance, error) {
	instances := make([]Instance, 0, len(names))
	for _, name := range names {
		inst, err := CreateInstance(ctx, d, factory, hostAddr, configWord, name)
		if err != nil {
			return nil, err
		}
		logger.Info("Created a super app instance", "name", name, "address", inst.Address, "tx", inst.TxHash)
		instances = append(instances, inst)
	}
	return instances, nil
}

// InvokeInstances calls doSomething() on the first instance and then reads
// myVar() from every instance.
func InvokeInstances(ctx context.Context, d *publish.Deployer, instances []Instance, logger log.Logger) (Invocation, error) {
	if len(instances) == 0 {
		return Invocation{}, errors.New("no instances to invoke")
	}

	first := instances[0]
	txHash, err := mysuperapp.DoSomething(ctx, d, first.Address)
	if err != nil {
		return Invocation{}, err
	}
	receipt, err := d.WaitMined(ctx, txHash)
	if err != nil {
		return Invocation{}, fmt.Errorf("%s doSomething: %w", first.Name, err)
	}
	logger.Info("Called doSomething", "app", first.Name, "tx", txHash, "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)

	out := Invocation{DoSomethingTx: txHash, Apps: make([]AppState, 0, len(instances))}
	for _, inst := range instances {
		v, err := mysuperapp.MyVar(ctx, d, inst.Address)
		if err != nil {
			return Invocation{}, err
		}
		logger.Info("Read myVar", "app", inst.Name, "value", v)
		out.Apps = append(out.Apps, AppState{Name: inst.Name, Address: inst.Address, MyVar: v.String()})
	}
	return out, nil
}

// Package superapp deploys a MySuperApp template and its factory, authorizes
// the factory with the host's governance and stamps out named app instances.
package superapp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/governance"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/host"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperfactory"
)

var (
	ErrNotGovernanceOwner   = errors.New("signer is not the governance owner")
	ErrFactoryNotAuthorized = errors.New("factory not authorized after registration")
	ErrInstanceNotFound     = errors.New("factory has no instance under that name")
)

var DefaultAppNames = []string{"App1", "App2"}

type Config struct {
	Host       common.Address
	ConfigWord *big.Int
	AppNames   []string

	// TestMode enables account impersonation on fork nodes.
	TestMode             bool
	Flavor               publish.NodeFlavor
	ImpersonationBalance *big.Int

	Template *publish.Artifact
	Factory  *publish.Artifact
}

func DefaultConfig() Config {
	return Config{
		Host:                 host.Polygon,
		ConfigWord:           new(big.Int).Set(mysuperfactory.DefaultConfigWord),
		AppNames:             append([]string(nil), DefaultAppNames...),
		Flavor:               publish.FlavorHardhat,
		ImpersonationBalance: new(big.Int).Set(publish.DefaultImpersonationBalance),
	}
}

func (c Config) Check() error {
	if c.Host == (common.Address{}) {
		return errors.New("host address is required")
	}
	if c.ConfigWord == nil || c.ConfigWord.Sign() < 0 {
		return errors.New("config word must be a non-negative integer")
	}
	if len(c.AppNames) == 0 {
		return errors.New("at least one app name is required")
	}
	for i, name := range c.AppNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("app name[%d] is empty", i)
		}
	}
	if c.Template == nil || c.Factory == nil {
		return errors.New("template and factory artifacts are required")
	}
	if c.TestMode && (c.ImpersonationBalance == nil || c.ImpersonationBalance.Sign() <= 0) {
		return errors.New("impersonation balance must be positive")
	}
	return nil
}

type (
	Governance struct {
		Address common.Address `json:"address"`
		Owner   common.Address `json:"owner"`
	}

	Deployment struct {
		Template common.Address `json:"template"`
		Factory  common.Address `json:"factory"`
	}

	Instance struct {
		Name    string         `json:"name"`
		Address common.Address `json:"address"`
		TxHash  common.Hash    `json:"tx_hash"`
	}

	AppState struct {
		Name    string         `json:"name"`
		Address common.Address `json:"address"`
		MyVar   string         `json:"my_var"`
	}

	Invocation struct {
		DoSomethingTx common.Hash `json:"do_something_tx"`
		Apps          []AppState  `json:"apps"`
	}

	Report struct {
		Network           publish.Network `json:"network"`
		Signer            common.Address  `json:"signer"`
		Host              common.Address  `json:"host"`
		Governance        Governance      `json:"governance"`
		Deployment        Deployment      `json:"deployment"`
		FactoryAuthorized bool            `json:"factory_authorized"`
		Instances         []Instance      `json:"instances"`
		Invocation        Invocation      `json:"invocation"`
	}
)

// Run executes the whole deployment in order. Each stage blocks on the
// previous one; the first error aborts the run and leaves whatever was
// already mined on chain.
func Run(ctx context.Context, d *publish.Deployer, cfg Config, logger log.Logger) (*Report, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	network, err := publish.GetNetwork(ctx, d.Client())
	if err != nil {
		return nil, err
	}
	logger.Info("In network", "name", network.Name, "chain_id", network.ChainID)
	logger.Info("Deploying with signer", "address", d.Address())

	gov, err := ResolveGovernance(ctx, d, cfg.Host)
	if err != nil {
		return nil, err
	}
	logger.Info("Resolved governance", "host", cfg.Host, "governance", gov.Address, "owner", gov.Owner)

	deployment, err := DeployContracts(ctx, d, cfg.Template, cfg.Factory, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Authorizing super factory to register apps")
	authorized, err := RegisterFactory(ctx, d, cfg, gov, deployment.Factory, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Factory registered", "authorized", authorized)

	logger.Info("Instantiating contracts", "count", len(cfg.AppNames))
	instances, err := CreateInstances(ctx, d, deployment.Factory, cfg.Host, cfg.ConfigWord, cfg.AppNames, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Doing something")
	invocation, err := InvokeInstances(ctx, d, instances, logger)
	if err != nil {
		return nil, err
	}

	return &Report{
		Network:           network,
		Signer:            d.Address(),
		Host:              cfg.Host,
		Governance:        gov,
		Deployment:        deployment,
		FactoryAuthorized: authorized,
		Instances:         instances,
		Invocation:        invocation,
	}, nil
}

// ResolveGovernance reads the host's governance and the governance owner.
func ResolveGovernance(ctx context.Context, d *publish.Deployer, hostAddr common.Address) (Governance, error) {
	govAddr, err := host.Governance(ctx, d, hostAddr)
	if err != nil {
		return Governance{}, err
	}
	owner, err := governance.Owner(ctx, d, govAddr)
	if err != nil {
		return Governance{}, err
	}
	return Governance{Address: govAddr, Owner: owner}, nil
}

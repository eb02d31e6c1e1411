package superapp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/governance"
)

// Impersonate makes the node sign for addr, funds it and returns a Deployer
// sending from it. Only fork and dev nodes support this.
func Impersonate(ctx context.Context, d *publish.Deployer, flavor publish.NodeFlavor, addr common.Address, balance *big.Int) (*publish.Deployer, error) {
	client := d.Client()
	if err := publish.ImpersonateAccount(ctx, client, flavor, addr); err != nil {
		return nil, err
	}
	if err := publish.SetBalance(ctx, client, flavor, addr, balance); err != nil {
		return nil, err
	}
	return d.As(addr), nil
}

// OwnerDeployer returns a Deployer able to send as the governance owner. In
// test mode the owner is impersonated and release undoes that; otherwise d
// must already be the owner.
func OwnerDeployer(ctx context.Context, d *publish.Deployer, cfg Config, owner common.Address, logger log.Logger) (ownerD *publish.Deployer, release func(), err error) {
	if !cfg.TestMode {
		if d.Address() != owner {
			return nil, nil, fmt.Errorf("%w: signer %s, owner %s (enable test mode to impersonate)", ErrNotGovernanceOwner, d.Address().Hex(), owner.Hex())
		}
		return d, func() {}, nil
	}

	ownerD, err = Impersonate(ctx, d, cfg.Flavor, owner, cfg.ImpersonationBalance)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Impersonating governance owner", "owner", owner, "flavor", cfg.Flavor, "balance", cfg.ImpersonationBalance)

	release = func() {
		// cleanup still runs once ctx is cancelled
		if err := publish.StopImpersonatingAccount(context.WithoutCancel(ctx), d.Client(), cfg.Flavor, owner); err != nil {
			logger.Warn("Failed to stop impersonating", "owner", owner, "err", err)
		}
	}
	return ownerD, release, nil
}

// RegisterFactory authorizes factory with governance from the governance owner
// and reads the authorization back.
func RegisterFactory(ctx context.Context, d *publish.Deployer, cfg Config, gov Governance, factory common.Address, logger log.Logger) (bool, error) {
	ownerD, release, err := OwnerDeployer(ctx, d, cfg, gov.Owner, logger)
	if err != nil {
		return false, err
	}
	defer release()

	logger.Info("Authorizing factory", "governance", gov.Address, "host", cfg.Host, "factory", factory)
	txHash, err := governance.AuthorizeAppFactory(ctx, ownerD, gov.Address, cfg.Host, factory)
	if err != nil {
		return false, err
	}
	if _, err := ownerD.WaitMined(ctx, txHash); err != nil {
		return false, fmt.Errorf("authorizeAppFactory: %w", err)
	}
	logger.Info("Authorization tx finished", "tx", txHash)

	authorized, err := governance.IsAuthorizedAppFactory(ctx, d, gov.Address, cfg.Host, factory)
	if err != nil {
		return false, err
	}
	logger.Info("Factory authorization", "authorized", authorized)
	if !authorized {
		return false, fmt.Errorf("%w: %s", ErrFactoryNotAuthorized, factory.Hex())
	}
	return true, nil
}

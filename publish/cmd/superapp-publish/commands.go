package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/governance"
	"github.com/cosmo-local-credit/superapp-factory/publish/superapp"
)

func runCmd(c *cli.Context) error {
	cfg, err := runConfig(c)
	if err != nil {
		return err
	}

	e, err := setup(c, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cfg.Host = e.host

	report, err := superapp.Run(e.ctx, e.deployer, cfg, e.logger)
	if err != nil {
		return err
	}
	return printJSON(c, report)
}

func runConfig(c *cli.Context) (superapp.Config, error) {
	cfg, err := ownerConfig(c)
	if err != nil {
		return superapp.Config{}, err
	}

	cfg.ConfigWord, err = parseUint256(c.String(ConfigWordFlag.Name))
	if err != nil {
		return superapp.Config{}, fmt.Errorf("config-word: %w", err)
	}
	cfg.AppNames = nil
	for _, name := range c.StringSlice(AppFlag.Name) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.AppNames = append(cfg.AppNames, name)
		}
	}

	dir := c.String(ArtifactsFlag.Name)
	cfg.Template, err = publish.LoadArtifact(dir, c.String(TemplateNameFlag.Name))
	if err != nil {
		return superapp.Config{}, err
	}
	cfg.Factory, err = publish.LoadArtifact(dir, c.String(FactoryNameFlag.Name))
	if err != nil {
		return superapp.Config{}, err
	}
	return cfg, nil
}

// ownerConfig carries the settings deciding how governance-owner calls are sent.
func ownerConfig(c *cli.Context) (superapp.Config, error) {
	cfg := superapp.DefaultConfig()
	flavor, err := publish.ParseNodeFlavor(c.String(NodeFlavorFlag.Name))
	if err != nil {
		return superapp.Config{}, err
	}
	cfg.Flavor = flavor
	cfg.TestMode = c.Bool(TestModeFlag.Name)
	return cfg, nil
}

type inspectReport struct {
	Host              common.Address      `json:"host"`
	Governance        superapp.Governance `json:"governance"`
	Factory           *common.Address     `json:"factory,omitempty"`
	FactoryAuthorized *bool               `json:"factory_authorized,omitempty"`
	ConfigKey         *common.Hash        `json:"config_key,omitempty"`
	ConfigValue       *string             `json:"config_value,omitempty"`
}

func inspectCmd(c *cli.Context) error {
	e, err := setup(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	gov, err := superapp.ResolveGovernance(e.ctx, e.deployer, e.host)
	if err != nil {
		return err
	}
	out := inspectReport{Host: e.host, Governance: gov}

	if v := c.String(FactoryFlag.Name); v != "" {
		factory, err := parseAddress(v)
		if err != nil {
			return fmt.Errorf("factory: %w", err)
		}
		ok, err := governance.IsAuthorizedAppFactory(e.ctx, e.deployer, gov.Address, e.host, factory)
		if err != nil {
			return err
		}
		out.Factory, out.FactoryAuthorized = &factory, &ok
	}

	if v := c.String(ConfigKeyFlag.Name); v != "" {
		superToken, err := parseAddress(c.String(SuperTokenFlag.Name))
		if err != nil {
			return fmt.Errorf("super-token: %w", err)
		}
		key := governance.ConfigKey(v)
		value, err := governance.GetConfigAsUint256(e.ctx, e.deployer, gov.Address, e.host, superToken, key)
		if err != nil {
			return err
		}
		keyHash, s := common.Hash(key), value.String()
		out.ConfigKey, out.ConfigValue = &keyHash, &s
	}
	return printJSON(c, out)
}

func setConfigCmd(c *cli.Context) error {
	cfg, err := ownerConfig(c)
	if err != nil {
		return err
	}
	keyArg := c.String(ConfigKeyFlag.Name)
	if keyArg == "" {
		return errors.New("config-key is required")
	}
	value, err := parseUint256(c.String(ConfigValueFlag.Name))
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	superToken, err := parseAddress(c.String(SuperTokenFlag.Name))
	if err != nil {
		return fmt.Errorf("super-token: %w", err)
	}

	return asGovernanceOwner(c, cfg, func(e *env, gov superapp.Governance, owner *publish.Deployer) (common.Hash, error) {
		return governance.SetConfig(e.ctx, owner, gov.Address, e.host, superToken, governance.ConfigKey(keyArg), value)
	})
}

func setRegistrationKeyCmd(c *cli.Context) error {
	cfg, err := ownerConfig(c)
	if err != nil {
		return err
	}
	deployer, err := parseAddress(c.String(DeployerFlag.Name))
	if err != nil {
		return fmt.Errorf("deployer: %w", err)
	}
	key := c.String(RegistrationKeyFlag.Name)
	if key == "" {
		return errors.New("key is required")
	}
	expiration := new(big.Int).SetUint64(c.Uint64(ExpirationFlag.Name))

	return asGovernanceOwner(c, cfg, func(e *env, gov superapp.Governance, owner *publish.Deployer) (common.Hash, error) {
		return governance.SetAppRegistrationKey(e.ctx, owner, gov.Address, e.host, deployer, key, expiration)
	})
}

func verifyRegistrationKeyCmd(c *cli.Context) error {
	deployer, err := parseAddress(c.String(DeployerFlag.Name))
	if err != nil {
		return fmt.Errorf("deployer: %w", err)
	}
	key := c.String(RegistrationKeyFlag.Name)
	if key == "" {
		return errors.New("key is required")
	}

	e, err := setup(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	gov, err := superapp.ResolveGovernance(e.ctx, e.deployer, e.host)
	if err != nil {
		return err
	}
	status, err := governance.VerifyAppRegistrationKey(e.ctx, e.deployer, gov.Address, e.host, deployer, key)
	if err != nil {
		return err
	}
	return printJSON(c, status)
}

type ownerTxReport struct {
	Governance superapp.Governance `json:"governance"`
	TxHash     common.Hash         `json:"tx_hash"`
}

// asGovernanceOwner resolves governance, obtains an owner-capable deployer and
// sends the transaction built by send.
func asGovernanceOwner(c *cli.Context, cfg superapp.Config, send func(*env, superapp.Governance, *publish.Deployer) (common.Hash, error)) error {
	e, err := setup(c, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cfg.Host = e.host

	gov, err := superapp.ResolveGovernance(e.ctx, e.deployer, e.host)
	if err != nil {
		return err
	}
	owner, release, err := superapp.OwnerDeployer(e.ctx, e.deployer, cfg, gov.Owner, e.logger)
	if err != nil {
		return err
	}
	defer release()

	txHash, err := send(e, gov, owner)
	if err != nil {
		return err
	}
	if _, err := owner.WaitMined(e.ctx, txHash); err != nil {
		return err
	}
	e.logger.Info("Governance transaction mined", "tx", txHash)
	return printJSON(c, ownerTxReport{Governance: gov, TxHash: txHash})
}

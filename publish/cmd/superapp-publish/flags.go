package main

import (
	"github.com/urfave/cli/v2"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/host"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperapp"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperfactory"
	"github.com/cosmo-local-credit/superapp-factory/publish/superapp"
)

var (
	RPCURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "JSON-RPC endpoint of the node, usually a local fork",
		EnvVars: []string{"RPC_URL"},
		Value:   "http://127.0.0.1:8545",
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "expected chain id, checked against the node (0 skips the check)",
		EnvVars: []string{"CHAIN_ID"},
	}
	PrivateKeyFlag = &cli.StringFlag{
		Name:    "private-key",
		Usage:   "hex private key to sign with; the node's first account is used when empty",
		EnvVars: []string{"PRIVATE_KEY"},
	}
	PublicAddressFlag = &cli.StringFlag{
		Name:    "public-address",
		Usage:   "public address for validation against the private key",
		EnvVars: []string{"PUBLIC_ADDRESS"},
	}
	HostFlag = &cli.StringFlag{
		Name:    "host",
		Usage:   "host contract address",
		EnvVars: []string{"HOST_ADDRESS"},
		Value:   host.Polygon.Hex(),
	}
	GasFeeCapFlag = &cli.Int64Flag{
		Name:    "gas-fee-cap",
		Usage:   "EIP-1559 fee cap in wei for key-signed transactions (0 asks the node)",
		EnvVars: []string{"GAS_FEE_CAP"},
	}
	GasTipCapFlag = &cli.Int64Flag{
		Name:    "gas-tip-cap",
		Usage:   "EIP-1559 tip cap in wei for key-signed transactions (0 asks the node)",
		EnvVars: []string{"GAS_TIP_CAP"},
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "overall deadline (0 waits indefinitely)",
		EnvVars: []string{"TIMEOUT"},
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "receipt polling interval",
		EnvVars: []string{"POLL_INTERVAL"},
		Value:   publish.DefaultPollInterval,
	}
	TestModeFlag = &cli.BoolFlag{
		Name:    "test-mode",
		Usage:   "impersonate the governance owner (fork and dev nodes only)",
		EnvVars: []string{"TEST_MODE"},
	}
	NodeFlavorFlag = &cli.StringFlag{
		Name:    "node-flavor",
		Usage:   "admin RPC namespace of the dev node: hardhat|anvil",
		EnvVars: []string{"NODE_FLAVOR"},
		Value:   string(publish.FlavorHardhat),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "trace|debug|info|warn|error|crit",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "info",
	}
	LogColorFlag = &cli.BoolFlag{
		Name:    "log.color",
		Usage:   "colored terminal log output",
		EnvVars: []string{"LOG_COLOR"},
	}
)

var Flags = []cli.Flag{
	RPCURLFlag,
	ChainIDFlag,
	PrivateKeyFlag,
	PublicAddressFlag,
	HostFlag,
	GasFeeCapFlag,
	GasTipCapFlag,
	TimeoutFlag,
	PollIntervalFlag,
	TestModeFlag,
	NodeFlavorFlag,
	LogLevelFlag,
	LogColorFlag,
}

var (
	ArtifactsFlag = &cli.StringFlag{
		Name:    "artifacts",
		Usage:   "hardhat artifacts or foundry out directory",
		EnvVars: []string{"ARTIFACTS_DIR"},
		Value:   "artifacts",
	}
	TemplateNameFlag = &cli.StringFlag{
		Name:  "template-contract",
		Usage: "template contract name",
		Value: mysuperapp.Name,
	}
	FactoryNameFlag = &cli.StringFlag{
		Name:  "factory-contract",
		Usage: "factory contract name",
		Value: mysuperfactory.Name,
	}
	ConfigWordFlag = &cli.StringFlag{
		Name:    "config-word",
		Usage:   "app config word passed to every instance",
		EnvVars: []string{"CONFIG_WORD"},
		Value:   mysuperfactory.DefaultConfigWord.String(),
	}
	AppFlag = &cli.StringSliceFlag{
		Name:    "app",
		Usage:   "instance name, repeatable",
		EnvVars: []string{"APP_NAMES"},
		Value:   cli.NewStringSlice(superapp.DefaultAppNames...),
	}
)

var RunFlags = []cli.Flag{
	ArtifactsFlag,
	TemplateNameFlag,
	FactoryNameFlag,
	ConfigWordFlag,
	AppFlag,
}

var (
	FactoryFlag = &cli.StringFlag{
		Name:  "factory",
		Usage: "factory address to check authorization for",
	}
	SuperTokenFlag = &cli.StringFlag{
		Name:  "super-token",
		Usage: "super token the config applies to (zero address for host-wide)",
		Value: "0x0000000000000000000000000000000000000000",
	}
	ConfigKeyFlag = &cli.StringFlag{
		Name:  "config-key",
		Usage: "config key, bytes32 hex or a string hashed with keccak256",
	}
	ConfigValueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "uint256 config value",
	}
	DeployerFlag = &cli.StringFlag{
		Name:  "deployer",
		Usage: "deployer address the registration key is bound to",
	}
	RegistrationKeyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "app registration key",
	}
	ExpirationFlag = &cli.Uint64Flag{
		Name:  "expiration",
		Usage: "registration key expiration unix timestamp",
	}
)

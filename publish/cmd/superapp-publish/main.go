package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/lmittmann/w3"
	"github.com/urfave/cli/v2"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
)

func main() {
	if err := loadEnv(os.Getenv("ENV_FILE")); err != nil {
		exitErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		exitErr(err)
	}
}

// loadEnv reads path, or .env when path is empty. A missing default file is not an error.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "superapp-publish"
	app.Usage = "Deploys a super app factory, authorizes it with governance and creates app instances."
	app.Version = Version
	if GitCommit != "" {
		app.Version += "-" + GitCommit
	}
	app.Flags = Flags
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "deploys template and factory, authorizes the factory and creates the apps",
			Flags:  RunFlags,
			Action: runCmd,
		},
		{
			Name:   "inspect",
			Usage:  "prints governance, its owner and optional factory/config state",
			Flags:  []cli.Flag{FactoryFlag, SuperTokenFlag, ConfigKeyFlag},
			Action: inspectCmd,
		},
		{
			Name:   "set-config",
			Usage:  "sets a uint256 governance config value as the governance owner",
			Flags:  []cli.Flag{SuperTokenFlag, ConfigKeyFlag, ConfigValueFlag},
			Action: setConfigCmd,
		},
		{
			Name:  "registration-key",
			Usage: "manages app registration keys",
			Subcommands: []*cli.Command{
				{
					Name:   "set",
					Usage:  "sets a registration key for a deployer as the governance owner",
					Flags:  []cli.Flag{DeployerFlag, RegistrationKeyFlag, ExpirationFlag},
					Action: setRegistrationKeyCmd,
				},
				{
					Name:   "verify",
					Usage:  "checks a deployer's registration key",
					Flags:  []cli.Flag{DeployerFlag, RegistrationKeyFlag},
					Action: verifyRegistrationKeyCmd,
				},
			},
		},
	}
	return app
}

// env bundles what every command needs once flags are resolved.
type env struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	deployer *publish.Deployer
	host     common.Address
}

func (e *env) Close() {
	e.cancel()
	_ = e.deployer.Close()
}

// setup resolves logger, host and deployer. Read-only commands fall back to
// the zero address as caller when neither a key nor a node account exists.
func setup(c *cli.Context, readOnly bool) (*env, error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	hostAddr, err := parseAddress(c.String(HostFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout := c.Duration(TimeoutFlag.Name); timeout > 0 {
		ctx, cancel = context.WithTimeout(c.Context, timeout)
	} else {
		ctx, cancel = context.WithCancel(c.Context)
	}

	d, err := newDeployer(ctx, c, readOnly)
	if err != nil {
		cancel()
		return nil, err
	}
	return &env{ctx: ctx, cancel: cancel, logger: logger, deployer: d, host: hostAddr}, nil
}

func newLogger(c *cli.Context) (log.Logger, error) {
	lvl, err := log.LvlFromString(c.String(LogLevelFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(c.App.ErrWriter, lvl, c.Bool(LogColorFlag.Name)))
	log.SetDefault(logger)
	return logger, nil
}

func newDeployer(ctx context.Context, c *cli.Context, readOnly bool) (*publish.Deployer, error) {
	client, err := publish.Dial(ctx, c.String(RPCURLFlag.Name))
	if err != nil {
		return nil, err
	}

	network, err := publish.GetNetwork(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if want := c.Uint64(ChainIDFlag.Name); want != 0 && want != network.ChainID {
		_ = client.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %d, expected %d", network.ChainID, want)
	}
	chainID := new(big.Int).SetUint64(network.ChainID)

	var d *publish.Deployer
	if pk := c.String(PrivateKeyFlag.Name); pk != "" {
		key, addr, err := parsePrivateKey(pk)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if pub := c.String(PublicAddressFlag.Name); pub != "" {
			pubAddr, err := parseAddress(pub)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			if pubAddr != addr {
				_ = client.Close()
				return nil, fmt.Errorf("public-address %s does not match private key address %s", pubAddr.Hex(), addr.Hex())
			}
		}
		feeCap, tipCap, err := gasFees(ctx, c, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		d = publish.NewDeployer(client, chainID, key, feeCap, tipCap)
	} else {
		account, err := publish.DefaultAccount(ctx, client)
		switch {
		case errors.Is(err, publish.ErrNoAccounts) && readOnly:
			account = common.Address{}
		case err != nil:
			_ = client.Close()
			return nil, err
		}
		d = publish.NewAccountDeployer(client, chainID, account)
	}
	return d.WithPollInterval(c.Duration(PollIntervalFlag.Name)), nil
}

// gasFees takes the fee flags and asks the node for whichever is unset.
func gasFees(ctx context.Context, c *cli.Context, client *w3.Client) (feeCap, tipCap *big.Int, err error) {
	feeCap = big.NewInt(c.Int64(GasFeeCapFlag.Name))
	tipCap = big.NewInt(c.Int64(GasTipCapFlag.Name))
	if feeCap.Sign() > 0 && tipCap.Sign() > 0 {
		return feeCap, tipCap, nil
	}
	suggestedFeeCap, suggestedTipCap, err := publish.SuggestFees(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	if tipCap.Sign() <= 0 {
		tipCap = suggestedTipCap
	}
	if feeCap.Sign() <= 0 {
		feeCap = suggestedFeeCap
		if feeCap.Cmp(tipCap) < 0 {
			feeCap = new(big.Int).Add(suggestedFeeCap, tipCap)
		}
	}
	return feeCap, tipCap, nil
}

func printJSON(c *cli.Context, v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(blob))
	return err
}

func parsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func parseAddress(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address: %s", v)
	}
	return common.HexToAddress(v), nil
}

func parseUint256(v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 0)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("invalid uint256: %q", v)
	}
	return n, nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

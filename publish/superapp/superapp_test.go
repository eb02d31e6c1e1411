package superapp_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/governance"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperfactory"
	"github.com/cosmo-local-credit/superapp-factory/publish/internal/devnode"
	"github.com/cosmo-local-credit/superapp-factory/publish/superapp"
)

var (
	hostAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	govAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	deployerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	templateCode = []byte{0x60, 0x80, 0x60, 0x40, 0x01}
	factoryCode  = []byte{0x60, 0x80, 0x60, 0x40, 0x02}
)

const factoryArtifact = `{
	"contractName": "MySuperFactory",
	"abi": [{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"template","type":"address","internalType":"address"}]}],
	"bytecode": "0x6080604002"
}`

type fixture struct {
	ctx    context.Context
	node   *devnode.Node
	gov    *devnode.Governance
	client *publish.Deployer
	cfg    superapp.Config
	logs   *bytes.Buffer
	logger log.Logger
}

// newFixture forks host and governance onto a dev node; opts apply after the defaults.
func newFixture(t *testing.T, testMode bool, opts ...devnode.Option) *fixture {
	t.Helper()
	opts = append([]devnode.Option{devnode.WithDeployFunc(devnode.SuperAppDeployFunc(templateCode, factoryCode))}, opts...)
	node := devnode.New(t, opts...)
	gov := node.Fork(hostAddr, govAddr, ownerAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	factory, err := publish.ParseArtifact([]byte(factoryArtifact))
	require.NoError(t, err)

	cfg := superapp.DefaultConfig()
	cfg.Host = hostAddr
	cfg.TestMode = testMode
	cfg.Template = &publish.Artifact{ContractName: "MySuperApp", Bytecode: templateCode}
	cfg.Factory = factory

	var logs bytes.Buffer
	f := &fixture{
		ctx:    ctx,
		node:   node,
		gov:    gov,
		cfg:    cfg,
		logs:   &logs,
		logger: log.NewLogger(log.NewTerminalHandler(&logs, false)),
	}
	f.client = publish.NewAccountDeployer(client, node.ChainID(), common.Address{}).WithPollInterval(10 * time.Millisecond)
	t.Cleanup(func() { f.client.Close() })
	return f
}

// deployer returns a node-managed deployer sending from addr.
func (f *fixture) deployer(addr common.Address) *publish.Deployer {
	return f.client.As(addr)
}

func TestRunTestMode(t *testing.T) {
	f := newFixture(t, true, devnode.WithAccounts(deployerAddr))
	d := f.deployer(deployerAddr)

	report, err := superapp.Run(f.ctx, d, f.cfg, f.logger)
	require.NoError(t, err)

	require.Equal(t, publish.Network{Name: "hardhat", ChainID: devnode.DefaultChainID}, report.Network)
	require.Equal(t, deployerAddr, report.Signer)
	require.Equal(t, superapp.Governance{Address: govAddr, Owner: ownerAddr}, report.Governance)
	require.True(t, report.FactoryAuthorized)

	dep := report.Deployment
	require.NotEqual(t, common.Address{}, dep.Template)
	require.NotEqual(t, common.Address{}, dep.Factory)
	require.NotEqual(t, dep.Template, dep.Factory)
	factory, ok := f.node.Contract(dep.Factory).(*devnode.Factory)
	require.True(t, ok)
	require.Equal(t, dep.Template, factory.Template)

	authorized, err := governance.IsAuthorizedAppFactory(f.ctx, d, govAddr, hostAddr, dep.Factory)
	require.NoError(t, err)
	require.True(t, authorized)

	require.Len(t, report.Instances, 2)
	require.NotEqual(t, report.Instances[0].Address, report.Instances[1].Address)
	for i, name := range superapp.DefaultAppNames {
		inst := report.Instances[i]
		require.Equal(t, name, inst.Name)
		require.Equal(t, crypto.CreateAddress(dep.Factory, uint64(i)), inst.Address)
		registered, err := mysuperfactory.DeployedSuperApp(f.ctx, d, dep.Factory, name)
		require.NoError(t, err)
		require.Equal(t, inst.Address, registered)

		app, ok := f.node.Contract(inst.Address).(*devnode.App)
		require.True(t, ok)
		require.Equal(t, hostAddr, app.Host)
		require.Equal(t, 0, mysuperfactory.DefaultConfigWord.Cmp(app.ConfigWord))
		require.Equal(t, name, app.Name)
	}

	require.Equal(t, []superapp.AppState{
		{Name: "App1", Address: report.Instances[0].Address, MyVar: "1"},
		{Name: "App2", Address: report.Instances[1].Address, MyVar: "0"},
	}, report.Invocation.Apps)

	require.True(t, f.node.WasImpersonated(ownerAddr))
	require.False(t, f.node.Impersonating(ownerAddr))
	require.Equal(t, 0, publish.DefaultImpersonationBalance.Cmp(f.node.Balance(ownerAddr)))
	require.Contains(t, f.logs.String(), "Created a super app instance")
}

func TestRunWithKeySigner(t *testing.T) {
	f := newFixture(t, true)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	d := publish.NewDeployer(f.client.Client(), f.node.ChainID(), key, big.NewInt(2), big.NewInt(1)).
		WithPollInterval(10 * time.Millisecond)

	report, err := superapp.Run(f.ctx, d, f.cfg, f.logger)
	require.NoError(t, err)

	signer := crypto.PubkeyToAddress(key.PublicKey)
	require.Equal(t, signer, report.Signer)
	require.Equal(t, crypto.CreateAddress(signer, 0), report.Deployment.Template)
	require.Equal(t, crypto.CreateAddress(signer, 1), report.Deployment.Factory)
	require.True(t, report.FactoryAuthorized)
	require.Equal(t, "1", report.Invocation.Apps[0].MyVar)
}

func TestRunRequiresOwnerOutsideTestMode(t *testing.T) {
	f := newFixture(t, false, devnode.WithAccounts(deployerAddr))

	_, err := superapp.Run(f.ctx, f.deployer(deployerAddr), f.cfg, f.logger)
	require.ErrorIs(t, err, superapp.ErrNotGovernanceOwner)
	require.False(t, f.node.WasImpersonated(ownerAddr))
}

func TestRunAsGovernanceOwner(t *testing.T) {
	f := newFixture(t, false, devnode.WithAccounts(ownerAddr))

	report, err := superapp.Run(f.ctx, f.deployer(ownerAddr), f.cfg, f.logger)
	require.NoError(t, err)
	require.True(t, report.FactoryAuthorized)
	require.False(t, f.node.WasImpersonated(ownerAddr))
}

func TestRunCustomAppNames(t *testing.T) {
	f := newFixture(t, true, devnode.WithAccounts(deployerAddr))
	f.cfg.AppNames = []string{"Solo"}
	f.cfg.Flavor = publish.FlavorAnvil

	report, err := superapp.Run(f.ctx, f.deployer(deployerAddr), f.cfg, f.logger)
	require.NoError(t, err)
	require.Len(t, report.Instances, 1)
	require.Equal(t, "Solo", report.Instances[0].Name)
	require.Equal(t, []superapp.AppState{{Name: "Solo", Address: report.Instances[0].Address, MyVar: "1"}}, report.Invocation.Apps)
}

func TestCreateInstanceNeedsAuthorization(t *testing.T) {
	f := newFixture(t, true, devnode.WithAccounts(deployerAddr))
	d := f.deployer(deployerAddr)

	dep, err := superapp.DeployContracts(f.ctx, d, f.cfg.Template, f.cfg.Factory, f.logger)
	require.NoError(t, err)

	_, err = superapp.CreateInstance(f.ctx, d, dep.Factory, hostAddr, f.cfg.ConfigWord, "App1")
	require.ErrorContains(t, err, "factory not authorized")

	gov, err := superapp.ResolveGovernance(f.ctx, d, hostAddr)
	require.NoError(t, err)
	authorized, err := superapp.RegisterFactory(f.ctx, d, f.cfg, gov, dep.Factory, f.logger)
	require.NoError(t, err)
	require.True(t, authorized)

	first, err := superapp.CreateInstance(f.ctx, d, dep.Factory, hostAddr, f.cfg.ConfigWord, "App1")
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, first.Address)

	_, err = superapp.CreateInstance(f.ctx, d, dep.Factory, hostAddr, f.cfg.ConfigWord, "App1")
	require.ErrorContains(t, err, "already deployed")

	other, err := superapp.CreateInstance(f.ctx, d, dep.Factory, hostAddr, f.cfg.ConfigWord, "App2")
	require.NoError(t, err)
	require.NotEqual(t, first.Address, other.Address)
}

func TestRegisterFactoryNotRecorded(t *testing.T) {
	f := newFixture(t, true, devnode.WithAccounts(deployerAddr))
	f.node.Update(func() { f.gov.IgnoreAuthorizations = true })

	_, err := superapp.Run(f.ctx, f.deployer(deployerAddr), f.cfg, f.logger)
	require.ErrorIs(t, err, superapp.ErrFactoryNotAuthorized)
	require.True(t, f.node.WasImpersonated(ownerAddr))
	require.False(t, f.node.Impersonating(ownerAddr))
	require.NotContains(t, f.logs.String(), "Created a super app instance")
}

func TestCreateInstanceNotRegistered(t *testing.T) {
	deploy := devnode.SuperAppDeployFunc(templateCode, factoryCode)
	f := newFixture(t, true,
		devnode.WithAccounts(deployerAddr),
		devnode.WithDeployFunc(func(from common.Address, code []byte) (devnode.Contract, error) {
			c, err := deploy(from, code)
			if factory, ok := c.(*devnode.Factory); ok {
				factory.Unlisted = true
			}
			return c, err
		}),
	)

	_, err := superapp.Run(f.ctx, f.deployer(deployerAddr), f.cfg, f.logger)
	require.ErrorIs(t, err, superapp.ErrInstanceNotFound)
	require.ErrorContains(t, err, `"App1"`)
}

func TestOwnerDeployerRelease(t *testing.T) {
	f := newFixture(t, true)
	d := f.deployer(deployerAddr)

	owner, release, err := superapp.OwnerDeployer(f.ctx, d, f.cfg, ownerAddr, f.logger)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, owner.Address())
	require.True(t, f.node.Impersonating(ownerAddr))

	release()
	require.False(t, f.node.Impersonating(ownerAddr))
}

func TestResolveGovernanceUnknownHost(t *testing.T) {
	f := newFixture(t, true)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	_, err := superapp.ResolveGovernance(f.ctx, f.deployer(deployerAddr), unknown)
	require.Error(t, err)
}

func TestConfigCheck(t *testing.T) {
	artifact := &publish.Artifact{ContractName: "X", Bytecode: []byte{0x01}}
	valid := superapp.DefaultConfig()
	valid.Template, valid.Factory = artifact, artifact
	require.NoError(t, valid.Check())
	require.Equal(t, []string{"App1", "App2"}, valid.AppNames)
	require.Equal(t, int64(270582939649), valid.ConfigWord.Int64())

	tests := []struct {
		name   string
		modify func(*superapp.Config)
	}{
		{"no host", func(c *superapp.Config) { c.Host = common.Address{} }},
		{"no config word", func(c *superapp.Config) { c.ConfigWord = nil }},
		{"negative config word", func(c *superapp.Config) { c.ConfigWord = big.NewInt(-1) }},
		{"no apps", func(c *superapp.Config) { c.AppNames = nil }},
		{"blank app", func(c *superapp.Config) { c.AppNames = []string{"App1", " "} }},
		{"no template", func(c *superapp.Config) { c.Template = nil }},
		{"no balance in test mode", func(c *superapp.Config) {
			c.TestMode = true
			c.ImpersonationBalance = new(big.Int)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			require.Error(t, cfg.Check())
		})
	}
}

package publish_test

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/cosmo-local-credit/superapp-factory/publish"
	"github.com/cosmo-local-credit/superapp-factory/publish/contracts/mysuperapp"
	"github.com/cosmo-local-credit/superapp-factory/publish/internal/devnode"
)

var (
	templateCode = []byte{0x60, 0x80, 0x60, 0x40, 0x01}
	factoryCode  = []byte{0x60, 0x80, 0x60, 0x40, 0x02}
)

func newNode(t *testing.T, opts ...devnode.Option) *devnode.Node {
	opts = append([]devnode.Option{devnode.WithDeployFunc(devnode.SuperAppDeployFunc(templateCode, factoryCode))}, opts...)
	return devnode.New(t, opts...)
}

func newApp() *devnode.App {
	return &devnode.App{MyVar: new(big.Int)}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetNetwork(t *testing.T) {
	node := newNode(t)
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)
	defer client.Close()

	network, err := publish.GetNetwork(ctx, client)
	require.NoError(t, err)
	require.Equal(t, publish.Network{Name: "hardhat", ChainID: devnode.DefaultChainID}, network)
}

func TestNetworkName(t *testing.T) {
	for id, want := range map[uint64]string{
		1:      "mainnet",
		137:    "matic",
		31337:  "hardhat",
		424242: "unknown",
	} {
		require.Equal(t, want, publish.NetworkName(id), "chain %d", id)
	}
}

func TestDefaultAccount(t *testing.T) {
	acct := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := newNode(t, devnode.WithAccounts(acct))
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)
	defer client.Close()

	got, err := publish.DefaultAccount(ctx, client)
	require.NoError(t, err)
	require.Equal(t, acct, got)

	empty := newNode(t)
	emptyClient, err := publish.Dial(ctx, empty.URL())
	require.NoError(t, err)
	defer emptyClient.Close()
	_, err = publish.DefaultAccount(ctx, emptyClient)
	require.ErrorIs(t, err, publish.ErrNoAccounts)
}

func TestKeyDeployerDeploy(t *testing.T) {
	node := newNode(t)
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	d := publish.NewDeployer(client, node.ChainID(), key, common.Big2, common.Big1).WithPollInterval(10 * time.Millisecond)
	defer d.Close()
	require.False(t, d.NodeManaged())

	first, err := d.DeployAndWait(ctx, templateCode)
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(d.Address(), 0), first.ContractAddress)

	second, err := d.DeployAndWait(ctx, templateCode)
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(d.Address(), 1), second.ContractAddress)
	require.NotEqual(t, first.ContractAddress, second.ContractAddress)

	txHash, err := mysuperapp.DoSomething(ctx, d, first.ContractAddress)
	require.NoError(t, err)
	_, err = d.WaitMined(ctx, txHash)
	require.NoError(t, err)

	v, err := mysuperapp.MyVar(ctx, d, first.ContractAddress)
	require.NoError(t, err)
	require.EqualValues(t, 1, v.Int64())
}

func TestKeyDeployerRejectsUnknownCode(t *testing.T) {
	node := newNode(t)
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	d := publish.NewDeployer(client, node.ChainID(), key, common.Big2, common.Big1)
	defer d.Close()

	_, err = d.Deploy(ctx, []byte{0xde, 0xad})
	require.ErrorContains(t, err, "estimate gas")
}

func TestAccountDeployer(t *testing.T) {
	acct := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := newNode(t, devnode.WithAccounts(acct))
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	d := publish.NewAccountDeployer(client, node.ChainID(), acct).WithPollInterval(10 * time.Millisecond)
	defer d.Close()
	require.True(t, d.NodeManaged())

	result, err := d.DeployAndWait(ctx, templateCode)
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(acct, 0), result.ContractAddress)

	stranger := d.As(common.HexToAddress("0x00000000000000000000000000000000000000bb"))
	_, err = mysuperapp.DoSomething(ctx, stranger, result.ContractAddress)
	require.ErrorContains(t, err, "unknown account")
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	node := newNode(t)
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	d := publish.NewAccountDeployer(client, node.ChainID(), common.Address{}).WithPollInterval(5 * time.Millisecond)
	defer d.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = d.WaitForReceipt(waitCtx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCodeAt(t *testing.T) {
	node := newNode(t)
	gov := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	node.SetContract(gov, devnode.NewGovernance(common.Address{}))
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)
	d := publish.NewAccountDeployer(client, node.ChainID(), common.Address{})
	defer d.Close()

	code, err := d.CodeAt(ctx, gov)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	code, err = d.CodeAt(ctx, common.HexToAddress("0x00000000000000000000000000000000000000c2"))
	require.NoError(t, err)
	require.Empty(t, code)
}

// revertOnCommit passes dry runs and gas estimation but fails once mined.
type revertOnCommit struct{}

func (revertOnCommit) Handle(msg devnode.Msg) ([]byte, error) {
	if msg.Commit {
		return nil, devnode.Revert("state changed before inclusion")
	}
	return nil, nil
}

func TestWaitMinedReverted(t *testing.T) {
	acct := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	target := common.HexToAddress("0x00000000000000000000000000000000000000d2")
	node := newNode(t, devnode.WithAccounts(acct))
	node.SetContract(target, revertOnCommit{})
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	for name, d := range map[string]*publish.Deployer{
		"account": publish.NewAccountDeployer(client, node.ChainID(), acct),
		"key":     publish.NewDeployer(client, node.ChainID(), key, common.Big2, common.Big1),
	} {
		d = d.WithPollInterval(10 * time.Millisecond)
		txHash, err := d.Transact(ctx, target, []byte{0x01, 0x02, 0x03, 0x04})
		require.NoError(t, err, name)

		receipt, err := d.WaitMined(ctx, txHash)
		require.ErrorIs(t, err, publish.ErrReverted, name)
		require.NotNil(t, receipt, name)
		require.Equal(t, uint64(0), receipt.Status, name)
	}
	client.Close()
}

func TestDeployAndWaitWithoutCode(t *testing.T) {
	acct := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := devnode.New(t,
		devnode.WithAccounts(acct),
		devnode.WithDeployFunc(func(common.Address, []byte) (devnode.Contract, error) { return nil, nil }),
	)
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	d := publish.NewAccountDeployer(client, node.ChainID(), acct).WithPollInterval(10 * time.Millisecond)
	defer d.Close()

	_, err = d.DeployAndWait(ctx, templateCode)
	require.ErrorIs(t, err, publish.ErrNoCode)
	require.ErrorContains(t, err, crypto.CreateAddress(acct, 0).Hex())
}

func TestWaitForReceiptStopsOnRPCError(t *testing.T) {
	// no eth namespace: every receipt lookup fails with method not found
	server := rpc.NewServer()
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		server.Stop()
	})

	ctx := testContext(t)
	client, err := publish.Dial(ctx, srv.URL)
	require.NoError(t, err)
	d := publish.NewAccountDeployer(client, big.NewInt(devnode.DefaultChainID), common.Address{}).WithPollInterval(5 * time.Millisecond)
	defer d.Close()

	_, err = d.WaitForReceipt(ctx, common.HexToHash("0x01"))
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, ctx.Err())
}

func TestSuggestFees(t *testing.T) {
	baseFee := big.NewInt(30_000_000_000)
	node := newNode(t, devnode.WithBaseFee(baseFee))
	ctx := testContext(t)
	client, err := publish.Dial(ctx, node.URL())
	require.NoError(t, err)

	feeCap, tipCap, err := publish.SuggestFees(ctx, client)
	require.NoError(t, err)
	require.Equal(t, 0, devnode.DefaultTipCap.Cmp(tipCap))
	want := new(big.Int).Mul(new(big.Int).Add(baseFee, devnode.DefaultTipCap), common.Big2)
	require.Equal(t, 0, want.Cmp(feeCap))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	low := publish.NewDeployer(client, node.ChainID(), key, big.NewInt(2_000_000_000), big.NewInt(1_000_000_000))
	_, err = low.Deploy(ctx, templateCode)
	require.ErrorContains(t, err, "less than block base fee")

	suggested := publish.NewDeployer(client, node.ChainID(), key, feeCap, tipCap).WithPollInterval(10 * time.Millisecond)
	defer suggested.Close()
	_, err = suggested.DeployAndWait(ctx, templateCode)
	require.NoError(t, err)
}

package publish

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"github.com/sethvargo/go-retry"
)

const DefaultPollInterval = 2 * time.Second

var (
	ErrReverted = errors.New("transaction reverted")
	ErrNoCode   = errors.New("no code at address")
)

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
	}

	// Deployer sends transactions from a single account. Key-bound deployers
	// sign locally, account deployers leave signing to the node.
	Deployer struct {
		client       *w3.Client
		chainID      *big.Int
		signer       types.Signer
		key          *ecdsa.PrivateKey
		address      common.Address
		gasFeeCap    *big.Int
		gasTipCap    *big.Int
		pollInterval time.Duration
	}
)

func Dial(ctx context.Context, rpcURL string) (*w3.Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return w3.NewClient(rpcClient), nil
}

// SuggestFees asks the node for EIP-1559 fees. The fee cap leaves room for
// the base fee to double before the transaction is mined.
func SuggestFees(ctx context.Context, client *w3.Client) (gasFeeCap, gasTipCap *big.Int, err error) {
	var gasPrice *big.Int
	if err := client.CallCtx(ctx,
		eth.GasPrice().Returns(&gasPrice),
		eth.GasTipCap().Returns(&gasTipCap),
	); err != nil {
		return nil, nil, fmt.Errorf("suggest fees: %w", err)
	}
	gasFeeCap = new(big.Int).Mul(gasPrice, common.Big2)
	if gasFeeCap.Cmp(gasTipCap) < 0 {
		gasFeeCap.Set(gasTipCap)
	}
	return gasFeeCap, gasTipCap, nil
}

func NewDeployer(client *w3.Client, chainID *big.Int, privateKey *ecdsa.PrivateKey, gasFeeCap, gasTipCap *big.Int) *Deployer {
	return &Deployer{
		client:       client,
		chainID:      chainID,
		signer:       types.NewLondonSigner(chainID),
		key:          privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		gasFeeCap:    gasFeeCap,
		gasTipCap:    gasTipCap,
		pollInterval: DefaultPollInterval,
	}
}

// NewAccountDeployer returns a Deployer for an account the node can sign for,
// such as an unlocked dev account or an impersonated one.
func NewAccountDeployer(client *w3.Client, chainID *big.Int, address common.Address) *Deployer {
	return &Deployer{
		client:       client,
		chainID:      chainID,
		address:      address,
		pollInterval: DefaultPollInterval,
	}
}

// As returns a Deployer on the same connection sending from a node-managed account.
func (d *Deployer) As(address common.Address) *Deployer {
	return &Deployer{
		client:       d.client,
		chainID:      d.chainID,
		address:      address,
		pollInterval: d.pollInterval,
	}
}

func (d *Deployer) WithPollInterval(interval time.Duration) *Deployer {
	cp := *d
	cp.pollInterval = interval
	return &cp
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) Client() *w3.Client {
	return d.client
}

func (d *Deployer) ChainID() *big.Int {
	return new(big.Int).Set(d.chainID)
}

func (d *Deployer) NodeManaged() bool {
	return d.key == nil
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (d *Deployer) estimateGas(ctx context.Context, to *common.Address, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, To: to, Input: data}
	if err := d.client.CallCtx(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	// 20% headroom over the estimate
	return gas + gas/5, nil
}

func (d *Deployer) signAndSend(ctx context.Context, to *common.Address, data []byte) (common.Hash, uint64, error) {
	nonce, err := d.getNonce(ctx)
	if err != nil {
		return common.Hash{}, 0, err
	}
	gas, err := d.estimateGas(ctx, to, data)
	if err != nil {
		return common.Hash{}, 0, err
	}

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		To:        to,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gas,
		Data:      data,
	})
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("sign tx: %w", err)
	}
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(nil)); err != nil {
		return common.Hash{}, 0, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nonce, nil
}

func (d *Deployer) sendFromAccount(ctx context.Context, to *common.Address, data []byte) (common.Hash, error) {
	var txHash common.Hash
	args := sendTxArgs{From: d.address, To: to, Data: data}
	if err := d.client.CallCtx(ctx, newRawCall("eth_sendTransaction", &txHash, args)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx from %s: %w", d.address.Hex(), err)
	}
	return txHash, nil
}

// Deploy sends a contract creation transaction. For key-bound deployers the
// contract address is derived from the nonce; account deployers only learn it
// from the receipt.
func (d *Deployer) Deploy(ctx context.Context, code []byte) (DeployResult, error) {
	if d.NodeManaged() {
		txHash, err := d.sendFromAccount(ctx, nil, code)
		if err != nil {
			return DeployResult{}, err
		}
		return DeployResult{TxHash: txHash}, nil
	}

	txHash, nonce, err := d.signAndSend(ctx, nil, code)
	if err != nil {
		return DeployResult{}, err
	}
	return DeployResult{
		TxHash:          txHash,
		ContractAddress: crypto.CreateAddress(d.address, nonce),
	}, nil
}

func (d *Deployer) Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if d.NodeManaged() {
		return d.sendFromAccount(ctx, &to, data)
	}
	txHash, _, err := d.signAndSend(ctx, &to, data)
	return txHash, err
}

// TransactFunc encodes fn with args and sends it to contract.
func (d *Deployer) TransactFunc(ctx context.Context, contract common.Address, fn w3types.Func, args ...any) (common.Hash, error) {
	data, err := fn.EncodeArgs(args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode call: %w", err)
	}
	return d.Transact(ctx, contract, data)
}

// Call runs a read-only call of fn against contract from the deployer's address.
func (d *Deployer) Call(ctx context.Context, contract common.Address, fn w3types.Func, args []any, returns ...any) error {
	return d.client.CallCtx(ctx, eth.CallFunc(contract, fn, args...).From(d.address).Returns(returns...))
}

func (d *Deployer) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := d.client.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// WaitForReceipt polls until the node knows the receipt of txHash. Only a
// missing receipt is retried; RPC failures end the wait.
func (d *Deployer) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	backoff, err := retry.NewConstant(d.pollInterval)
	if err != nil {
		return nil, fmt.Errorf("receipt backoff: %w", err)
	}

	var receipt *types.Receipt
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		// a pending tx yields a null receipt, leaving r nil
		var r *types.Receipt
		if err := d.client.CallCtx(ctx, newRawCall("eth_getTransactionReceipt", &r, txHash)); err != nil {
			return fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
		}
		if r == nil {
			return retry.RetryableError(fmt.Errorf("receipt %s not available", txHash.Hex()))
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// WaitMined waits for txHash and fails with ErrReverted unless the receipt
// reports success.
func (d *Deployer) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := d.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, txHash.Hex())
	}
	return receipt, nil
}

// DeployAndWait deploys code, waits for it to be mined and checks code landed
// at the resulting address.
func (d *Deployer) DeployAndWait(ctx context.Context, code []byte) (DeployResult, error) {
	result, err := d.Deploy(ctx, code)
	if err != nil {
		return DeployResult{}, err
	}
	receipt, err := d.WaitMined(ctx, result.TxHash)
	if err != nil {
		return DeployResult{}, err
	}
	if receipt.ContractAddress != (common.Address{}) {
		result.ContractAddress = receipt.ContractAddress
	}
	deployed, err := d.CodeAt(ctx, result.ContractAddress)
	if err != nil {
		return DeployResult{}, err
	}
	if len(deployed) == 0 {
		return DeployResult{}, fmt.Errorf("%w: %s", ErrNoCode, result.ContractAddress.Hex())
	}
	return result, nil
}

type sendTxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

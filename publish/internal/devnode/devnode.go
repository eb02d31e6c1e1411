// Package devnode is an in-process JSON-RPC node for tests. It speaks the
// subset of eth_* plus the hardhat/anvil admin namespaces the publisher uses,
// with contracts simulated in Go.
package devnode

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

const DefaultChainID = 31337

// DefaultTipCap is what the node suggests as priority fee.
var DefaultTipCap = big.NewInt(1_000_000_000)

// Contract is a simulated contract. Handle must not mutate state unless msg.Commit is set.
type Contract interface {
	Handle(msg Msg) ([]byte, error)
}

// DeployFunc builds the contract for creation code sent by from. A nil
// contract without error leaves no code behind, like a constructor
// returning empty runtime code.
type DeployFunc func(from common.Address, code []byte) (Contract, error)

type Node struct {
	mu sync.Mutex

	chainID      *big.Int
	accounts     []common.Address
	impersonated map[common.Address]bool
	everImpers   map[common.Address]bool
	balances     map[common.Address]*big.Int
	nonces       map[common.Address]uint64
	contracts    map[common.Address]Contract
	code         map[common.Address][]byte
	receipts     map[common.Hash]*types.Receipt
	block        uint64
	baseFee      *big.Int
	deploy       DeployFunc

	srv *httptest.Server
}

type Option func(*Node)

func WithAccounts(accounts ...common.Address) Option {
	return func(n *Node) { n.accounts = accounts }
}

func WithChainID(id uint64) Option {
	return func(n *Node) { n.chainID = new(big.Int).SetUint64(id) }
}

// WithBaseFee makes raw transactions with a lower fee cap fail like on a live chain.
func WithBaseFee(wei *big.Int) Option {
	return func(n *Node) { n.baseFee = new(big.Int).Set(wei) }
}

func WithDeployFunc(fn DeployFunc) Option {
	return func(n *Node) { n.deploy = fn }
}

// New starts a node on a local HTTP server; it is shut down with the test.
func New(t testing.TB, opts ...Option) *Node {
	t.Helper()
	n := &Node{
		chainID:      big.NewInt(DefaultChainID),
		impersonated: make(map[common.Address]bool),
		everImpers:   make(map[common.Address]bool),
		balances:     make(map[common.Address]*big.Int),
		nonces:       make(map[common.Address]uint64),
		contracts:    make(map[common.Address]Contract),
		code:         make(map[common.Address][]byte),
		receipts:     make(map[common.Hash]*types.Receipt),
		baseFee:      new(big.Int),
	}
	for _, opt := range opts {
		opt(n)
	}

	server := rpc.NewServer()
	for _, api := range []struct {
		namespace string
		service   any
	}{
		{"eth", &ethAPI{n}},
		{"hardhat", &adminAPI{n}},
		{"anvil", &adminAPI{n}},
	} {
		if err := server.RegisterName(api.namespace, api.service); err != nil {
			t.Fatalf("register %s api: %v", api.namespace, err)
		}
	}
	n.srv = httptest.NewServer(server)
	t.Cleanup(func() {
		n.srv.Close()
		server.Stop()
	})
	return n
}

func (n *Node) URL() string {
	return n.srv.URL
}

func (n *Node) ChainID() *big.Int {
	return new(big.Int).Set(n.chainID)
}

// SetContract places c at addr, as if it were part of forked state.
func (n *Node) SetContract(addr common.Address, c Contract) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contracts[addr] = c
	n.code[addr] = []byte{0xfe}
}

// Update runs fn with the node locked, for changing simulated contracts between requests.
func (n *Node) Update(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn()
}

func (n *Node) Balance(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (n *Node) Impersonating(addr common.Address) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.impersonated[addr]
}

// WasImpersonated reports whether addr was ever impersonated.
func (n *Node) WasImpersonated(addr common.Address) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.everImpers[addr]
}

func (n *Node) Contract(addr common.Address) Contract {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.contracts[addr]
}

// Msg is the call context handed to simulated contracts.
type Msg struct {
	node   *Node
	From   common.Address
	Self   common.Address
	Input  []byte
	Commit bool
}

// Call runs a nested call from the current contract.
func (m Msg) Call(to common.Address, input []byte) ([]byte, error) {
	return m.node.exec(m.Self, to, input, m.Commit)
}

// Create deploys c from the current contract. Without Commit only the
// address is computed.
func (m Msg) Create(c Contract) common.Address {
	addr := crypto.CreateAddress(m.Self, m.node.nonces[m.Self])
	if m.Commit {
		m.node.nonces[m.Self]++
		m.node.contracts[addr] = c
		m.node.code[addr] = []byte{0xfe}
	}
	return addr
}

// RevertError is returned for failed calls with the JSON-RPC code nodes use for reverts.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string  { return "execution reverted: " + e.Reason }
func (e *RevertError) ErrorCode() int { return 3 }

func Revert(format string, args ...any) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// exec must be called with n.mu held.
func (n *Node) exec(from, to common.Address, input []byte, commit bool) ([]byte, error) {
	c, ok := n.contracts[to]
	if !ok {
		return nil, nil
	}
	return c.Handle(Msg{node: n, From: from, Self: to, Input: input, Commit: commit})
}

func (n *Node) create(from common.Address, code []byte, commit bool) (common.Address, error) {
	if n.deploy == nil {
		return common.Address{}, errors.New("contract creation not supported")
	}
	c, err := n.deploy(from, code)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress(from, n.nonces[from])
	if commit && c != nil {
		n.contracts[addr] = c
		n.code[addr] = append([]byte(nil), code...)
	}
	return addr, nil
}

func (n *Node) canSend(from common.Address) bool {
	if n.impersonated[from] {
		return true
	}
	for _, a := range n.accounts {
		if a == from {
			return true
		}
	}
	return false
}

// mine runs a transaction and records its receipt. A reverted transaction
// is still mined with a failed status.
func (n *Node) mine(txHash common.Hash, from common.Address, to *common.Address, data []byte) *types.Receipt {
	n.block++
	receipt := &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		Logs:              []*types.Log{},
		TxHash:            txHash,
		BlockNumber:       new(big.Int).SetUint64(n.block),
		BlockHash:         crypto.Keccak256Hash(new(big.Int).SetUint64(n.block).Bytes()),
		EffectiveGasPrice: big.NewInt(1),
	}

	if to == nil {
		addr, err := n.create(from, data, true)
		if err != nil {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			receipt.ContractAddress = addr
		}
	} else if _, err := n.exec(from, *to, data, true); err != nil {
		receipt.Status = types.ReceiptStatusFailed
	}

	n.nonces[from]++
	n.receipts[txHash] = receipt
	return receipt
}

type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a CallArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a CallArgs) from() common.Address {
	if a.From != nil {
		return *a.From
	}
	return common.Address{}
}

type ethAPI struct {
	n *Node
}

func (api *ethAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(api.n.chainID.Uint64())
}

func (api *ethAPI) Accounts() []common.Address {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return append([]common.Address{}, api.n.accounts...)
}

func (api *ethAPI) GetTransactionCount(addr common.Address, block *string) hexutil.Uint64 {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return hexutil.Uint64(api.n.nonces[addr])
}

func (api *ethAPI) GetCode(addr common.Address, block *string) hexutil.Bytes {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return api.n.code[addr]
}

func (api *ethAPI) Call(args CallArgs, block *string, overrides *json.RawMessage) (hexutil.Bytes, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	if args.To == nil {
		return nil, errors.New("missing to")
	}
	return api.n.exec(args.from(), *args.To, args.data(), false)
}

func (api *ethAPI) EstimateGas(args CallArgs, block *string, overrides *json.RawMessage) (hexutil.Uint64, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	if args.To == nil {
		if _, err := api.n.create(args.from(), args.data(), false); err != nil {
			return 0, err
		}
		return 1_000_000, nil
	}
	if _, err := api.n.exec(args.from(), *args.To, args.data(), false); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Add(api.n.baseFee, DefaultTipCap))
}

func (api *ethAPI) MaxPriorityFeePerGas() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(DefaultTipCap))
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(api.n.chainID), tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}
	if want := api.n.nonces[from]; tx.Nonce() != want {
		return common.Hash{}, fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), want)
	}
	if tx.GasFeeCap().Cmp(api.n.baseFee) < 0 {
		return common.Hash{}, fmt.Errorf("max fee per gas less than block base fee: address %s, maxFeePerGas: %s, baseFee: %s",
			from.Hex(), tx.GasFeeCap(), api.n.baseFee)
	}
	api.n.mine(tx.Hash(), from, tx.To(), tx.Data())
	return tx.Hash(), nil
}

type SendArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

// SendTransaction signs for unlocked or impersonated accounts and, like
// hardhat, reports reverts as errors.
func (api *ethAPI) SendTransaction(args SendArgs) (common.Hash, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()

	if !api.n.canSend(args.From) {
		return common.Hash{}, fmt.Errorf("unknown account %s", args.From.Hex())
	}
	if args.To == nil {
		if _, err := api.n.create(args.From, args.Data, false); err != nil {
			return common.Hash{}, err
		}
	} else if _, err := api.n.exec(args.From, *args.To, args.Data, false); err != nil {
		return common.Hash{}, err
	}

	nonce := new(big.Int).SetUint64(api.n.nonces[args.From]).Bytes()
	txHash := crypto.Keccak256Hash(args.From.Bytes(), nonce, args.Data)
	api.n.mine(txHash, args.From, args.To, args.Data)
	return txHash, nil
}

func (api *ethAPI) GetTransactionReceipt(txHash common.Hash) (*types.Receipt, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return api.n.receipts[txHash], nil
}

type adminAPI struct {
	n *Node
}

func (api *adminAPI) ImpersonateAccount(addr common.Address) bool {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.impersonated[addr] = true
	api.n.everImpers[addr] = true
	return true
}

func (api *adminAPI) StopImpersonatingAccount(addr common.Address) bool {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	delete(api.n.impersonated, addr)
	return true
}

func (api *adminAPI) SetBalance(addr common.Address, balance hexutil.Big) bool {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.balances[addr] = (*big.Int)(&balance)
	return true
}

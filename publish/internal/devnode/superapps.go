package devnode

import (
	"bytes"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type method struct {
	selector []byte
	args     abi.Arguments
	rets     abi.Arguments
}

func newMethod(sig string, args, rets []string) method {
	return method{
		selector: crypto.Keccak256([]byte(sig))[:4],
		args:     arguments(args),
		rets:     arguments(rets),
	}
}

func arguments(types []string) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		out[i] = abi.Argument{Type: typ}
	}
	return out
}

func (m method) match(input []byte) bool {
	return len(input) >= 4 && bytes.Equal(input[:4], m.selector)
}

func (m method) decode(input []byte) ([]any, error) {
	return m.args.Unpack(input[4:])
}

func (m method) encode(args ...any) []byte {
	input, err := m.args.Pack(args...)
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, m.selector...), input...)
}

func (m method) ret(vals ...any) ([]byte, error) {
	return m.rets.Pack(vals...)
}

var (
	mGetGovernance            = newMethod("getGovernance()", nil, []string{"address"})
	mOwner                    = newMethod("owner()", nil, []string{"address"})
	mAuthorizeAppFactory      = newMethod("authorizeAppFactory(address,address)", []string{"address", "address"}, nil)
	mIsAuthorizedAppFactory   = newMethod("isAuthorizedAppFactory(address,address)", []string{"address", "address"}, []string{"bool"})
	mSetConfig                = newMethod("setConfig(address,address,bytes32,uint256)", []string{"address", "address", "bytes32", "uint256"}, nil)
	mGetConfigAsUint256       = newMethod("getConfigAsUint256(address,address,bytes32)", []string{"address", "address", "bytes32"}, []string{"uint256"})
	mSetAppRegistrationKey    = newMethod("setAppRegistrationKey(address,address,string,uint256)", []string{"address", "address", "string", "uint256"}, nil)
	mVerifyAppRegistrationKey = newMethod("verifyAppRegistrationKey(address,address,string)", []string{"address", "address", "string"}, []string{"bool", "uint256"})
	mMyVar                    = newMethod("myVar()", nil, []string{"uint256"})
	mDoSomething              = newMethod("doSomething()", nil, []string{"bool"})
	mCreateInstance           = newMethod("createMySuperAppInstance(address,uint256,string)", []string{"address", "uint256", "string"}, nil)
	mDeployedSuperApps        = newMethod("deployedSuperApps(string)", []string{"string"}, []string{"address"})
)

var errUnknownSelector = errors.New("unknown selector")

// Host answers getGovernance().
type Host struct {
	Governance common.Address
}

func (h *Host) Handle(msg Msg) ([]byte, error) {
	if mGetGovernance.match(msg.Input) {
		return mGetGovernance.ret(h.Governance)
	}
	return nil, Revert("host: %v", errUnknownSelector)
}

type configKey struct {
	host, superToken common.Address
	key              [32]byte
}

type regKey struct {
	host, deployer common.Address
	key            string
}

// Governance is an owned governance keeping factory authorizations,
// uint256 configs and app registration keys.
type Governance struct {
	Owner common.Address

	// IgnoreAuthorizations accepts authorizeAppFactory without recording it.
	IgnoreAuthorizations bool

	authorized map[[2]common.Address]bool
	configs    map[configKey]*big.Int
	regKeys    map[regKey]*big.Int
}

func NewGovernance(owner common.Address) *Governance {
	return &Governance{
		Owner:      owner,
		authorized: make(map[[2]common.Address]bool),
		configs:    make(map[configKey]*big.Int),
		regKeys:    make(map[regKey]*big.Int),
	}
}

func (g *Governance) onlyOwner(msg Msg) error {
	if msg.From != g.Owner {
		return Revert("Ownable: caller is not the owner")
	}
	return nil
}

func (g *Governance) Handle(msg Msg) ([]byte, error) {
	in := msg.Input
	switch {
	case mOwner.match(in):
		return mOwner.ret(g.Owner)

	case mIsAuthorizedAppFactory.match(in):
		args, err := mIsAuthorizedAppFactory.decode(in)
		if err != nil {
			return nil, err
		}
		return mIsAuthorizedAppFactory.ret(g.authorized[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}])

	case mAuthorizeAppFactory.match(in):
		if err := g.onlyOwner(msg); err != nil {
			return nil, err
		}
		args, err := mAuthorizeAppFactory.decode(in)
		if err != nil {
			return nil, err
		}
		if msg.Commit && !g.IgnoreAuthorizations {
			g.authorized[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}] = true
		}
		return nil, nil

	case mSetConfig.match(in):
		if err := g.onlyOwner(msg); err != nil {
			return nil, err
		}
		args, err := mSetConfig.decode(in)
		if err != nil {
			return nil, err
		}
		if msg.Commit {
			k := configKey{args[0].(common.Address), args[1].(common.Address), args[2].([32]byte)}
			g.configs[k] = args[3].(*big.Int)
		}
		return nil, nil

	case mGetConfigAsUint256.match(in):
		args, err := mGetConfigAsUint256.decode(in)
		if err != nil {
			return nil, err
		}
		v, ok := g.configs[configKey{args[0].(common.Address), args[1].(common.Address), args[2].([32]byte)}]
		if !ok {
			v = new(big.Int)
		}
		return mGetConfigAsUint256.ret(v)

	case mSetAppRegistrationKey.match(in):
		if err := g.onlyOwner(msg); err != nil {
			return nil, err
		}
		args, err := mSetAppRegistrationKey.decode(in)
		if err != nil {
			return nil, err
		}
		if msg.Commit {
			g.regKeys[regKey{args[0].(common.Address), args[1].(common.Address), args[2].(string)}] = args[3].(*big.Int)
		}
		return nil, nil

	case mVerifyAppRegistrationKey.match(in):
		args, err := mVerifyAppRegistrationKey.decode(in)
		if err != nil {
			return nil, err
		}
		exp, ok := g.regKeys[regKey{args[0].(common.Address), args[1].(common.Address), args[2].(string)}]
		if !ok {
			exp = new(big.Int)
		}
		valid := ok && exp.Cmp(big.NewInt(time.Now().Unix())) > 0
		return mVerifyAppRegistrationKey.ret(valid, exp)
	}
	return nil, Revert("governance: %v", errUnknownSelector)
}

// App is a MySuperApp instance: doSomething() bumps myVar.
type App struct {
	Host       common.Address
	ConfigWord *big.Int
	Name       string
	MyVar      *big.Int
}

func (a *App) Handle(msg Msg) ([]byte, error) {
	switch {
	case mMyVar.match(msg.Input):
		return mMyVar.ret(a.MyVar)
	case mDoSomething.match(msg.Input):
		if msg.Commit {
			a.MyVar = new(big.Int).Add(a.MyVar, common.Big1)
		}
		return mDoSomething.ret(true)
	}
	return nil, Revert("app: %v", errUnknownSelector)
}

// Factory creates named App instances once governance authorized it for the host.
type Factory struct {
	Template common.Address
	Apps     map[string]common.Address

	// Unlisted factories create apps without recording their names.
	Unlisted bool
}

func (f *Factory) Handle(msg Msg) ([]byte, error) {
	in := msg.Input
	switch {
	case mDeployedSuperApps.match(in):
		args, err := mDeployedSuperApps.decode(in)
		if err != nil {
			return nil, err
		}
		return mDeployedSuperApps.ret(f.Apps[args[0].(string)])

	case mCreateInstance.match(in):
		args, err := mCreateInstance.decode(in)
		if err != nil {
			return nil, err
		}
		host, configWord, name := args[0].(common.Address), args[1].(*big.Int), args[2].(string)
		if _, taken := f.Apps[name]; taken {
			return nil, Revert("MySuperFactory: name %q already deployed", name)
		}
		if err := f.checkAuthorized(msg, host); err != nil {
			return nil, err
		}
		addr := msg.Create(&App{Host: host, ConfigWord: configWord, Name: name, MyVar: new(big.Int)})
		if msg.Commit && !f.Unlisted {
			f.Apps[name] = addr
		}
		return nil, nil
	}
	return nil, Revert("factory: %v", errUnknownSelector)
}

func (f *Factory) checkAuthorized(msg Msg, host common.Address) error {
	out, err := msg.Call(host, mGetGovernance.encode())
	if err != nil {
		return err
	}
	govs, err := mGetGovernance.rets.Unpack(out)
	if err != nil {
		return Revert("bad host %s", host.Hex())
	}
	out, err = msg.Call(govs[0].(common.Address), mIsAuthorizedAppFactory.encode(host, msg.Self))
	if err != nil {
		return err
	}
	ok, err := mIsAuthorizedAppFactory.rets.Unpack(out)
	if err != nil || !ok[0].(bool) {
		return Revert("SF: factory not authorized")
	}
	return nil
}

// SuperAppDeployFunc recognises the template creation code and the factory
// creation code followed by an abi-encoded template address.
func SuperAppDeployFunc(templateCode, factoryCode []byte) DeployFunc {
	return func(from common.Address, code []byte) (Contract, error) {
		switch {
		case bytes.Equal(code, templateCode):
			return &App{MyVar: new(big.Int)}, nil
		case len(code) == len(factoryCode)+32 && bytes.HasPrefix(code, factoryCode):
			return &Factory{
				Template: common.BytesToAddress(code[len(factoryCode):]),
				Apps:     make(map[string]common.Address),
			}, nil
		}
		return nil, Revert("unknown creation code %x", code[:min(len(code), 8)])
	}
}

// Fork installs a host and its governance at fixed addresses, standing in for forked chain state.
func (n *Node) Fork(host, gov, owner common.Address) *Governance {
	g := NewGovernance(owner)
	n.SetContract(host, &Host{Governance: gov})
	n.SetContract(gov, g)
	return g
}

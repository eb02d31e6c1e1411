package governance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

var (
	FuncSetConfig = w3.MustNewFunc(
		"setConfig(address,address,bytes32,uint256)", "",
	)
	FuncSetAppRegistrationKey = w3.MustNewFunc(
		"setAppRegistrationKey(address,address,string,uint256)", "",
	)
	FuncGetConfigAsUint256 = w3.MustNewFunc(
		"getConfigAsUint256(address,address,bytes32)", "uint256",
	)
	FuncVerifyAppRegistrationKey = w3.MustNewFunc(
		"verifyAppRegistrationKey(address,address,string)", "bool,uint256",
	)
	FuncOwner = w3.MustNewFunc(
		"owner()", "address",
	)
	FuncIsAuthorizedAppFactory = w3.MustNewFunc(
		"isAuthorizedAppFactory(address,address)", "bool",
	)
	FuncAuthorizeAppFactory = w3.MustNewFunc(
		"authorizeAppFactory(address,address)", "",
	)
)

// ConfigKey turns a config key into its bytes32 form. 0x-prefixed 32 byte hex
// is used as is, anything else is hashed.
func ConfigKey(s string) [32]byte {
	if len(s) == 66 && strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return [32]byte(b)
		}
	}
	return [32]byte(crypto.Keccak256Hash([]byte(s)))
}

func Owner(ctx context.Context, d *publish.Deployer, gov common.Address) (common.Address, error) {
	var owner common.Address
	if err := d.Call(ctx, gov, FuncOwner, nil, &owner); err != nil {
		return common.Address{}, fmt.Errorf("governance %s owner: %w", gov.Hex(), err)
	}
	return owner, nil
}

func IsAuthorizedAppFactory(ctx context.Context, d *publish.Deployer, gov, host, factory common.Address) (bool, error) {
	var ok bool
	if err := d.Call(ctx, gov, FuncIsAuthorizedAppFactory, []any{host, factory}, &ok); err != nil {
		return false, fmt.Errorf("isAuthorizedAppFactory: %w", err)
	}
	return ok, nil
}

func AuthorizeAppFactory(ctx context.Context, d *publish.Deployer, gov, host, factory common.Address) (common.Hash, error) {
	txHash, err := d.TransactFunc(ctx, gov, FuncAuthorizeAppFactory, host, factory)
	if err != nil {
		return common.Hash{}, fmt.Errorf("authorizeAppFactory: %w", err)
	}
	return txHash, nil
}

func GetConfigAsUint256(ctx context.Context, d *publish.Deployer, gov, host, superToken common.Address, key [32]byte) (*big.Int, error) {
	var v *big.Int
	if err := d.Call(ctx, gov, FuncGetConfigAsUint256, []any{host, superToken, key}, &v); err != nil {
		return nil, fmt.Errorf("getConfigAsUint256: %w", err)
	}
	return v, nil
}

func SetConfig(ctx context.Context, d *publish.Deployer, gov, host, superToken common.Address, key [32]byte, value *big.Int) (common.Hash, error) {
	txHash, err := d.TransactFunc(ctx, gov, FuncSetConfig, host, superToken, key, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("setConfig: %w", err)
	}
	return txHash, nil
}

func SetAppRegistrationKey(ctx context.Context, d *publish.Deployer, gov, host, deployer common.Address, registrationKey string, expirationTs *big.Int) (common.Hash, error) {
	txHash, err := d.TransactFunc(ctx, gov, FuncSetAppRegistrationKey, host, deployer, registrationKey, expirationTs)
	if err != nil {
		return common.Hash{}, fmt.Errorf("setAppRegistrationKey: %w", err)
	}
	return txHash, nil
}

type RegistrationKeyStatus struct {
	ValidNow     bool     `json:"valid_now"`
	ExpirationTs *big.Int `json:"expiration_ts"`
}

func VerifyAppRegistrationKey(ctx context.Context, d *publish.Deployer, gov, host, deployer common.Address, registrationKey string) (RegistrationKeyStatus, error) {
	var status RegistrationKeyStatus
	if err := d.Call(ctx, gov, FuncVerifyAppRegistrationKey, []any{host, deployer, registrationKey}, &status.ValidNow, &status.ExpirationTs); err != nil {
		return RegistrationKeyStatus{}, fmt.Errorf("verifyAppRegistrationKey: %w", err)
	}
	return status, nil
}

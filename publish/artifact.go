package publish

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNoBytecode = errors.New("artifact has no bytecode")

// Artifact is a compiled contract as written by hardhat or foundry.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// LoadArtifact finds name in dir, trying the hardhat layout
// (contracts/<name>.sol/<name>.json) before the foundry one (<name>.sol/<name>.json).
func LoadArtifact(dir, name string) (*Artifact, error) {
	candidates := []string{
		filepath.Join(dir, "contracts", name+".sol", name+".json"),
		filepath.Join(dir, name+".sol", name+".json"),
	}
	for _, path := range candidates {
		blob, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", name, err)
		}
		a, err := ParseArtifact(blob)
		if err != nil {
			return nil, fmt.Errorf("parse artifact %s: %w", path, err)
		}
		if a.ContractName == "" {
			a.ContractName = name
		}
		return a, nil
	}
	return nil, fmt.Errorf("artifact %s not found under %s", name, dir)
}

func ParseArtifact(blob []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, err
	}

	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, ErrNoBytecode
	}

	a := &Artifact{ContractName: raw.ContractName, Bytecode: code}
	if len(raw.ABI) > 0 {
		parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
		if err != nil {
			return nil, fmt.Errorf("abi: %w", err)
		}
		a.ABI = parsed
	}
	return a, nil
}

// decodeBytecode accepts hardhat's "0x..." string and foundry's {"object": "0x..."}.
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("bytecode: %w", err)
		}
		s = obj.Object
	}
	if s == "" || s == "0x" {
		return nil, nil
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	return code, nil
}

// DeployData returns the creation code with ABI-encoded constructor args appended.
func (a *Artifact) DeployData(args ...any) ([]byte, error) {
	input, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s constructor: %w", a.ContractName, err)
	}
	data := make([]byte, 0, len(a.Bytecode)+len(input))
	data = append(data, a.Bytecode...)
	return append(data, input...), nil
}

package publish_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cosmo-local-credit/superapp-factory/publish"
)

const factoryABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"template","type":"address","internalType":"address"}]}]`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadArtifactHardhat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "contracts", "MySuperFactory.sol", "MySuperFactory.json"),
		`{"contractName":"MySuperFactory","abi":`+factoryABI+`,"bytecode":"0x6001600255"}`)

	a, err := publish.LoadArtifact(dir, "MySuperFactory")
	require.NoError(t, err)
	require.Equal(t, "MySuperFactory", a.ContractName)
	require.Equal(t, []byte{0x60, 0x01, 0x60, 0x02, 0x55}, a.Bytecode)
	require.NotNil(t, a.ABI.Constructor.Inputs)
}

func TestLoadArtifactFoundry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "MySuperApp.sol", "MySuperApp.json"),
		`{"abi":[],"bytecode":{"object":"0x60016002","linkReferences":{}}}`)

	a, err := publish.LoadArtifact(dir, "MySuperApp")
	require.NoError(t, err)
	require.Equal(t, "MySuperApp", a.ContractName)
	require.Equal(t, []byte{0x60, 0x01, 0x60, 0x02}, a.Bytecode)
}

func TestLoadArtifactErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "contracts", "Iface.sol", "Iface.json"), `{"abi":[],"bytecode":"0x"}`)
	writeFile(t, filepath.Join(dir, "contracts", "Broken.sol", "Broken.json"), `{"abi":`)

	_, err := publish.LoadArtifact(dir, "Missing")
	require.ErrorContains(t, err, "not found")

	_, err = publish.LoadArtifact(dir, "Iface")
	require.ErrorIs(t, err, publish.ErrNoBytecode)

	_, err = publish.LoadArtifact(dir, "Broken")
	require.Error(t, err)
}

func TestDeployDataAppendsConstructorArgs(t *testing.T) {
	a, err := publish.ParseArtifact([]byte(`{"contractName":"F","abi":` + factoryABI + `,"bytecode":"0xaabb"}`))
	require.NoError(t, err)

	template := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	data, err := a.DeployData(template)
	require.NoError(t, err)
	require.Len(t, data, 2+32)
	require.Equal(t, []byte{0xaa, 0xbb}, data[:2])
	require.Equal(t, template, common.BytesToAddress(data[2:]))

	_, err = a.DeployData()
	require.Error(t, err)
}

func TestDeployDataWithoutConstructor(t *testing.T) {
	a, err := publish.ParseArtifact([]byte(`{"abi":[],"bytecode":"0xaabb"}`))
	require.NoError(t, err)

	data, err := a.DeployData()
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa, 0xbb}, data)
}

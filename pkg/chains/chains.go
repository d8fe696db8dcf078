// Package chains lists the networks the registry is deployed on.
package chains

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	Gnosis uint64 = 100
	Celo   uint64 = 42220
)

// Deployment describes a known registry deployment.
type Deployment struct {
	ChainID  uint64
	Name     string
	RPCURL   string
	Registry common.Address
	GraphURL string
}

var deployments = []Deployment{
	{
		ChainID:  Celo,
		Name:     "celo",
		RPCURL:   "wss://forno.celo.org/ws",
		Registry: common.HexToAddress("0x3E30b138ecc85cD89210e1A19a8603544A917372"),
		GraphURL: "https://api.thegraph.com/subgraphs/name/centfinance/symmetricv1celo",
	},
	{
		ChainID:  Gnosis,
		Name:     "xdai",
		RPCURL:   "wss://rpc.gnosischain.com/wss",
		Registry: common.HexToAddress("0x8BB44cF81A7E263A0b0234Bf4Dd72482a88AFeCf"),
		GraphURL: "https://api.thegraph.com/subgraphs/name/centfinance/symmetric-xdai",
	},
}

// ByName looks a deployment up by name ("celo", "xdai" or "gnosis"), case-insensitively.
func ByName(name string) (Deployment, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "gnosis" {
		name = "xdai"
	}
	for _, d := range deployments {
		if d.Name == name {
			return d, true
		}
	}
	return Deployment{}, false
}

// ByChainID looks a deployment up by chain id.
func ByChainID(id uint64) (Deployment, bool) {
	for _, d := range deployments {
		if d.ChainID == id {
			return d, true
		}
	}
	return Deployment{}, false
}

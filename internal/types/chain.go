// Package types contains shared type definitions used across multiple packages
package types

import (
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

// SupportedChain represents a blockchain network supported by the monitor
type SupportedChain string

// Supported blockchain networks
const (
	ChainEthereum SupportedChain = "ethereum"
	ChainPolygon  SupportedChain = "polygon"
	ChainArbitrum SupportedChain = "arbitrum"
	ChainOptimism SupportedChain = "optimism"
	ChainBase     SupportedChain = "base"
)

// ChainInfo holds static metadata for a blockchain network
type ChainInfo struct {
	ChainID     int64  `json:"chain_id"`
	Name        string `json:"name"`
	NativeToken string `json:"native_token"`
	ExplorerURL string `json:"explorer_url"`
}

// ChainConfig holds runtime configuration for a specific blockchain network
type ChainConfig struct {
	Enabled     bool   `json:"enabled"`
	RPCEndpoint string `json:"rpc_endpoint"`
	APIKey      string `json:"api_key,omitempty"`
}

var chainRegistry = map[SupportedChain]ChainInfo{
	ChainEthereum: {ChainID: 1, Name: "Ethereum", NativeToken: "ETH", ExplorerURL: "https://etherscan.io"},
	ChainPolygon:  {ChainID: 137, Name: "Polygon", NativeToken: "POL", ExplorerURL: "https://polygonscan.com"},
	ChainArbitrum: {ChainID: 42161, Name: "Arbitrum One", NativeToken: "ETH", ExplorerURL: "https://arbiscan.io"},
	ChainOptimism: {ChainID: 10, Name: "OP Mainnet", NativeToken: "ETH", ExplorerURL: "https://optimistic.etherscan.io"},
	ChainBase:     {ChainID: 8453, Name: "Base", NativeToken: "ETH", ExplorerURL: "https://basescan.org"},
}

// ChainInfoFor looks up chain metadata, returning an unsupported-chain
// error for unknown networks.
func ChainInfoFor(chain SupportedChain) (ChainInfo, error) {
	info, ok := chainRegistry[chain]
	if !ok {
		return ChainInfo{}, apperrors.UnsupportedChain(string(chain))
	}
	return info, nil
}

// IsSupported reports whether the chain is in the registry.
func IsSupported(chain SupportedChain) bool {
	_, ok := chainRegistry[chain]
	return ok
}

// AllChains returns every registered chain identifier.
func AllChains() []SupportedChain {
	chains := make([]SupportedChain, 0, len(chainRegistry))
	for c := range chainRegistry {
		chains = append(chains, c)
	}
	return chains
}

package chain

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Spec is the static description of a supported chain. The matrix below is
// configuration, not data: the verifier, the approve response, and the
// wallet checks all consume it verbatim.
type Spec struct {
	Name   string
	Family string // wallet address family, e.g. "evm"

	// MinConfirmations is the finality proxy: blocks mined on top of the
	// transaction's block before we trust it. 1 for test chains.
	MinConfirmations int64

	// ExplorerTx is the transaction page URL prefix.
	ExplorerTx string

	// Tokens maps symbol to the token's contract address on this chain.
	Tokens map[string]string
}

var chains = map[string]*Spec{
	"ethereum": {
		Name:             "ethereum",
		Family:           "evm",
		MinConfirmations: 3,
		ExplorerTx:       "https://etherscan.io/tx/",
		Tokens: map[string]string{
			"USDC": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			"USDT": "0xdac17f958d2ee523a2206206994597c13d831ec7",
		},
	},
	"polygon": {
		Name:             "polygon",
		Family:           "evm",
		MinConfirmations: 3,
		ExplorerTx:       "https://polygonscan.com/tx/",
		Tokens: map[string]string{
			"USDC": "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359",
			"USDT": "0xc2132d05d31c914a87c6611c10748aeb04b58e8f",
		},
	},
	"base": {
		Name:             "base",
		Family:           "evm",
		MinConfirmations: 3,
		ExplorerTx:       "https://basescan.org/tx/",
		Tokens: map[string]string{
			"USDC": "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		},
	},
	"sepolia": {
		Name:             "sepolia",
		Family:           "evm",
		MinConfirmations: 1,
		ExplorerTx:       "https://sepolia.etherscan.io/tx/",
		Tokens: map[string]string{
			"USDC": "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238",
		},
	},
	"base-sepolia": {
		Name:             "base-sepolia",
		Family:           "evm",
		MinConfirmations: 1,
		ExplorerTx:       "https://sepolia.basescan.org/tx/",
		Tokens: map[string]string{
			"USDC": "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
		},
	},
}

// All supported stablecoins settle with 6 decimals.
const tokenDecimals = 6

func Get(name string) *Spec {
	return chains[name]
}

func Supported(chainName, token string) bool {
	c := chains[chainName]
	if c == nil {
		return false
	}
	_, ok := c.Tokens[token]
	return ok
}

func Family(chainName string) string {
	if c := chains[chainName]; c != nil {
		return c.Family
	}
	return ""
}

func MinConfirmations(chainName string) int64 {
	if c := chains[chainName]; c != nil {
		return c.MinConfirmations
	}
	return 0
}

func ExplorerURL(chainName, txHash string) string {
	if c := chains[chainName]; c != nil {
		return c.ExplorerTx + txHash
	}
	return ""
}

// Names returns the supported chain names, stable order.
func Names() []string {
	return []string{"ethereum", "polygon", "base", "sepolia", "base-sepolia"}
}

// TokensFor returns the token symbols supported on a chain, stable order.
func TokensFor(chainName string) []string {
	c := chains[chainName]
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Tokens))
	for _, sym := range []string{"USDC", "USDT"} {
		if _, ok := c.Tokens[sym]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// Matrix returns chain -> supported tokens for API responses.
func Matrix() map[string][]string {
	out := make(map[string][]string, len(chains))
	for _, name := range Names() {
		out[name] = TokensFor(name)
	}
	return out
}

// UnitsFromCents converts an integer-cent amount into token base units
// through the token's declared decimal precision. Exact integer math; a
// cent is 10^(decimals-2) units for 6-decimal stablecoins.
func UnitsFromCents(amountCents int64) *big.Int {
	d := decimal.New(amountCents, -2).Shift(tokenDecimals)
	return d.BigInt()
}

// NormalizeAddr lowercases an EVM address so recipient comparisons are
// checksum-insensitive.
func NormalizeAddr(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsSimulatedHash flags hashes that could only come from ledger-mode
// rehearsal: malformed hashes, the sandbox "0xsim..." convention, and the
// all-zero hash. On-chain mode rejects these before touching the network.
func IsSimulatedHash(h string) bool {
	if strings.HasPrefix(strings.ToLower(h), "0xsim") {
		return true
	}
	if !txHashRe.MatchString(h) {
		return true
	}
	return strings.Trim(h[2:], "0") == ""
}

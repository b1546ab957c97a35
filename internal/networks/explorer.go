package networks

import "strings"

var defaultExplorers = map[uint64]string{
	1:        "https://etherscan.io",
	11155111: "https://sepolia.etherscan.io",
	17000:    "https://holesky.etherscan.io",

	42161:  "https://arbiscan.io",
	421614: "https://sepolia.arbiscan.io",
	10:     "https://optimistic.etherscan.io",
	8453:   "https://basescan.org",
	84532:  "https://sepolia.basescan.org",
	137:    "https://polygonscan.com",
}

// explorerFor prefers the configured explorer and falls back to the
// built-in table. Local chains have none.
func explorerFor(c NetworkConfig) string {
	if e := strings.TrimRight(strings.TrimSpace(c.Explorer), "/"); e != "" {
		return e
	}
	return defaultExplorers[c.ChainID]
}

// TxURL links a transaction on the chain's block explorer, or returns ""
// when the chain has no explorer.
func (p NetworkProfile) TxURL(txHash string) string {
	if p.Explorer == "" || txHash == "" {
		return ""
	}
	return p.Explorer + "/tx/" + txHash
}

// AddressURL links an account or contract on the chain's block explorer.
func (p NetworkProfile) AddressURL(addr string) string {
	if p.Explorer == "" || addr == "" {
		return ""
	}
	return p.Explorer + "/address/" + addr
}

package prices

// Token catalog: user input -> pricing id, pricing id -> display symbol

import (
	"maps"
	"strings"
)

var defaultAliases = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"sol":   "solana",
	"bera":  "berachain-bera",
	"locks": "goldilocks-dao",
	"usdc":  "usd-coin",
	"usdt":  "tether",
}

var defaultSymbols = map[string]string{
	"bitcoin":        "BTC",
	"ethereum":       "ETH",
	"solana":         "SOL",
	"berachain-bera": "BERA",
	"goldilocks-dao": "LOCKS",
	"usd-coin":       "USDC",
	"tether":         "USDT",
	"prg":            "PRG",
}

type Catalog struct {
	aliases map[string]string
	symbols map[string]string
}

// NewCatalog merges configured aliases and symbols over the built-in tables.
func NewCatalog(symbols, aliases map[string]string) *Catalog {
	c := &Catalog{
		aliases: maps.Clone(defaultAliases),
		symbols: maps.Clone(defaultSymbols),
	}
	for k, v := range aliases {
		c.aliases[normalize(k)] = normalize(v)
	}
	for k, v := range symbols {
		c.symbols[normalize(k)] = strings.TrimSpace(v)
	}
	return c
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve maps user input ("BTC", "bitcoin") to a pricing id.
func (c *Catalog) Resolve(input string) string {
	id := normalize(input)
	if alias, ok := c.aliases[id]; ok {
		return alias
	}
	return id
}

// Symbol returns the display symbol for a pricing id.
func (c *Catalog) Symbol(id string) string {
	id = normalize(id)
	if s, ok := c.symbols[id]; ok && s != "" {
		return s
	}
	return strings.ToUpper(id)
}

package domain

// Token represents token metadata fetched from the subgraph.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	ID          string // token contract address (PK)
	Name        string // immutable once stored
	Symbol      string // immutable once stored
	TotalSupply string // decimal string, overwritten on upsert
	VolumeUSD   string // decimal string, overwritten on upsert
	Decimals    string // overwritten on upsert
}

// TrackedToken is a token the ingestion cycle pulls data for.
type TrackedToken struct {
	ID     string `yaml:"id" validate:"required"`
	Symbol string `yaml:"symbol" validate:"required"`
}

// DefaultTrackedTokens returns the token set used when configuration supplies none.
// Addresses are Ethereum mainnet ERC-20 contracts as indexed by the Uniswap v3 subgraph.
func DefaultTrackedTokens() []TrackedToken {
	return []TrackedToken{
		{ID: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH"},
		{ID: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Symbol: "WBTC"},
		{ID: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC"},
		{ID: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT"},
		{ID: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI"},
	}
}

// SymbolsByID maps token id to symbol.
func SymbolsByID(tokens []TrackedToken) map[string]string {
	m := make(map[string]string, len(tokens))
	for _, t := range tokens {
		m[t.ID] = t.Symbol
	}
	return m
}

// IDsBySymbol maps symbol to token id.
func IDsBySymbol(tokens []TrackedToken) map[string]string {
	m := make(map[string]string, len(tokens))
	for _, t := range tokens {
		m[t.Symbol] = t.ID
	}
	return m
}

// TokenIDs returns the ids of tracked tokens in configuration order.
func TokenIDs(tokens []TrackedToken) []string {
	ids := make([]string, 0, len(tokens))
	for _, t := range tokens {
		ids = append(ids, t.ID)
	}
	return ids
}

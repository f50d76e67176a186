package subgraph

// Token is a tokens(...) entry. Numeric fields are BigInt/BigDecimal on the
// subgraph and arrive as JSON strings.
type Token struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"totalSupply"`
	VolumeUSD   string `json:"volumeUSD"`
	Decimals    string `json:"decimals"`
}

// TokenRef is the nested token object on an hourly entry.
type TokenRef struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

// TokenHourData is a raw tokenHourDatas(...) entry. ID has the form
// "<tokenId>-<hourIndex>". Pointer fields are nil when the provider omits them.
type TokenHourData struct {
	ID              string    `json:"id"`
	PeriodStartUnix *int64    `json:"periodStartUnix"`
	Open            *string   `json:"open"`
	High            *string   `json:"high"`
	Low             *string   `json:"low"`
	Close           *string   `json:"close"`
	PriceUSD        *string   `json:"priceUSD"`
	Token           *TokenRef `json:"token"`
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type tokensData struct {
	Tokens []Token `json:"tokens"`
}

type tokenHourData struct {
	TokenHourDatas []TokenHourData `json:"tokenHourDatas"`
}

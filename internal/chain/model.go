package chain

import "time"

// OptionType distinguishes the two sides of a strike.
type OptionType string

const (
	// Call is the CE side of a strike entry.
	Call OptionType = "CALL"
	// Put is the PE side of a strike entry.
	Put OptionType = "PUT"
)

// ContractSnapshot is one option contract observed at one point in time.
type ContractSnapshot struct {
	Identifier           string
	IndexName            string
	OptionType           OptionType
	StrikePrice          int64
	ExpiryDate           time.Time
	UnderlyingValue      float64
	OpenInterest         float64
	ChangeInOpenInterest float64
	PercentChange        float64
	ImpliedVolatility    float64
	LastPrice            float64
	TotalTradedVolume    float64
	TotalBuyQuantity     float64
	TotalSellQuantity    float64
	BidPrice             float64
	BidQuantity          float64
	AskPrice             float64
	AskQuantity          float64
	ObservedAt           time.Time
}

// ChainSnapshot groups every contract of one symbol observed in one poll.
type ChainSnapshot struct {
	Symbol      string
	ObservedAt  time.Time
	ExpiryDates []time.Time
	Contracts   []ContractSnapshot
}

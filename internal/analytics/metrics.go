package analytics

import (
	"fmt"
	"math"
	"time"

	"optionwatch/internal/chain"
)

// Directional-move thresholds on a single contract.
const (
	DirectionalOIChange = 10000
	DirectionalIV       = 50
)

// Direction of a directional-move signal.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Signal flags heavy open-interest build-up with elevated volatility on one contract.
type Signal struct {
	Identifier           string
	OptionType           chain.OptionType
	StrikePrice          int64
	Direction            Direction
	ChangeInOpenInterest float64
	ImpliedVolatility    float64
}

// String renders the signal as a one-line announcement.
func (s Signal) String() string {
	return fmt.Sprintf("Significant %s move: %s %s strike %d, change in OI %.0f, IV %.2f",
		s.Direction, s.Identifier, s.OptionType, s.StrikePrice, s.ChangeInOpenInterest, s.ImpliedVolatility)
}

// Summary holds the chain-wide metrics of one poll.
type Summary struct {
	Symbol        string
	ObservedAt    time.Time
	Contracts     int
	InTheMoney    int
	PCR           float64
	MaxPainStrike int64
	HasMaxPain    bool
	Signals       []Signal
}

// PCR returns total PUT open interest over total CALL open interest, or 0
// when there is no CALL open interest.
func PCR(contracts []chain.ContractSnapshot) float64 {
	var puts, calls float64
	for _, c := range contracts {
		switch c.OptionType {
		case chain.Put:
			puts += c.OpenInterest
		case chain.Call:
			calls += c.OpenInterest
		}
	}
	if calls == 0 {
		return 0
	}
	return puts / calls
}

// MaxPain returns the strike with the lowest aggregate loss, where the loss at
// strike k weights every contract's open interest by the distance between k
// and the underlying value recorded on that contract's side. Ties keep the
// first strike seen in input order.
func MaxPain(contracts []chain.ContractSnapshot) (int64, bool) {
	strikes := make([]int64, 0, len(contracts))
	seen := make(map[int64]struct{}, len(contracts))
	for _, c := range contracts {
		if _, ok := seen[c.StrikePrice]; ok {
			continue
		}
		seen[c.StrikePrice] = struct{}{}
		strikes = append(strikes, c.StrikePrice)
	}
	if len(strikes) == 0 {
		return 0, false
	}

	best := strikes[0]
	bestLoss := math.Inf(1)
	for _, k := range strikes {
		loss := lossAt(float64(k), contracts)
		if loss < bestLoss {
			bestLoss = loss
			best = k
		}
	}
	return best, true
}

func lossAt(k float64, contracts []chain.ContractSnapshot) float64 {
	var total float64
	for _, c := range contracts {
		total += c.OpenInterest * math.Abs(k-c.UnderlyingValue)
	}
	return total
}

// InTheMoney reports whether a contract's strike is favourable to exercise:
// PUT strike above the underlying, CALL strike below it.
func InTheMoney(c chain.ContractSnapshot) bool {
	strike := float64(c.StrikePrice)
	switch c.OptionType {
	case chain.Put:
		return strike > c.UnderlyingValue
	case chain.Call:
		return strike < c.UnderlyingValue
	default:
		return false
	}
}

// DirectionalSignals flags CALLs (bullish) and PUTs (bearish) whose change in
// open interest and implied volatility both exceed the directional thresholds.
func DirectionalSignals(contracts []chain.ContractSnapshot) []Signal {
	var signals []Signal
	for _, c := range contracts {
		if c.ChangeInOpenInterest <= DirectionalOIChange || c.ImpliedVolatility <= DirectionalIV {
			continue
		}
		direction := Bullish
		if c.OptionType == chain.Put {
			direction = Bearish
		}
		signals = append(signals, Signal{
			Identifier:           c.Identifier,
			OptionType:           c.OptionType,
			StrikePrice:          c.StrikePrice,
			Direction:            direction,
			ChangeInOpenInterest: c.ChangeInOpenInterest,
			ImpliedVolatility:    c.ImpliedVolatility,
		})
	}
	return signals
}

// Summarize computes every chain-wide metric for one poll.
func Summarize(snap chain.ChainSnapshot) Summary {
	itm := 0
	for _, c := range snap.Contracts {
		if InTheMoney(c) {
			itm++
		}
	}
	strike, ok := MaxPain(snap.Contracts)
	return Summary{
		Symbol:        snap.Symbol,
		ObservedAt:    snap.ObservedAt,
		Contracts:     len(snap.Contracts),
		InTheMoney:    itm,
		PCR:           PCR(snap.Contracts),
		MaxPainStrike: strike,
		HasMaxPain:    ok,
		Signals:       DirectionalSignals(snap.Contracts),
	}
}

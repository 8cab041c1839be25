package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionwatch/internal/chain"
)

func contract(kind chain.OptionType, strike int64, underlying, oi float64) chain.ContractSnapshot {
	return chain.ContractSnapshot{
		Identifier:      string(kind) + "-" + string(rune('A'+strike%26)),
		OptionType:      kind,
		StrikePrice:     strike,
		UnderlyingValue: underlying,
		OpenInterest:    oi,
	}
}

func TestPCR(t *testing.T) {
	contracts := []chain.ContractSnapshot{
		contract(chain.Call, 100, 100, 200),
		contract(chain.Put, 100, 100, 150),
		contract(chain.Call, 110, 100, 300),
		contract(chain.Put, 110, 100, 350),
	}
	assert.InDelta(t, 500.0/500.0, PCR(contracts), 1e-9)

	contracts = append(contracts, contract(chain.Put, 120, 100, 500))
	assert.InDelta(t, 1000.0/500.0, PCR(contracts), 1e-9)
}

func TestPCRWithoutCallOpenInterest(t *testing.T) {
	assert.Equal(t, 0.0, PCR(nil))
	assert.Equal(t, 0.0, PCR([]chain.ContractSnapshot{contract(chain.Put, 100, 90, 1000)}))
	assert.Equal(t, 0.0, PCR([]chain.ContractSnapshot{
		contract(chain.Put, 100, 90, 1000),
		contract(chain.Call, 100, 90, 0),
	}))
}

func TestMaxPainPicksLowestLoss(t *testing.T) {
	contracts := []chain.ContractSnapshot{
		contract(chain.Call, 100, 108, 1),
		contract(chain.Put, 105, 108, 1),
		contract(chain.Call, 110, 108, 1),
	}
	strike, ok := MaxPain(contracts)
	require.True(t, ok)
	assert.Equal(t, int64(110), strike)
}

func TestMaxPainUsesEachSideUnderlying(t *testing.T) {
	contracts := []chain.ContractSnapshot{
		contract(chain.Call, 100, 104, 10),
		contract(chain.Put, 110, 104, 1),
	}
	// loss(100) = 10*4 + 1*4, loss(110) = 10*6 + 1*6
	strike, ok := MaxPain(contracts)
	require.True(t, ok)
	assert.Equal(t, int64(100), strike)
}

func TestMaxPainTiesResolveToFirstSeen(t *testing.T) {
	contracts := []chain.ContractSnapshot{
		contract(chain.Put, 110, 105, 5),
		contract(chain.Call, 100, 105, 10),
	}
	for i := 0; i < 10; i++ {
		strike, ok := MaxPain(contracts)
		require.True(t, ok)
		assert.Equal(t, int64(110), strike)
	}

	reversed := []chain.ContractSnapshot{contracts[1], contracts[0]}
	strike, _ := MaxPain(reversed)
	assert.Equal(t, int64(100), strike)
}

func TestMaxPainEmpty(t *testing.T) {
	_, ok := MaxPain(nil)
	assert.False(t, ok)
}

func TestInTheMoney(t *testing.T) {
	cases := []struct {
		kind       chain.OptionType
		strike     int64
		underlying float64
		want       bool
	}{
		{chain.Put, 22000, 21800, true},
		{chain.Call, 22000, 21800, false},
		{chain.Put, 22000, 22200, false},
		{chain.Call, 22000, 22200, true},
		{chain.Put, 22000, 22000, false},
		{chain.Call, 22000, 22000, false},
	}
	for _, tc := range cases {
		c := contract(tc.kind, tc.strike, tc.underlying, 1)
		assert.Equal(t, tc.want, InTheMoney(c), "%s strike %d underlying %.0f", tc.kind, tc.strike, tc.underlying)
	}
}

func TestDirectionalSignals(t *testing.T) {
	bull := contract(chain.Call, 100, 100, 1)
	bull.ChangeInOpenInterest, bull.ImpliedVolatility = 10001, 50.5
	bear := contract(chain.Put, 100, 100, 1)
	bear.ChangeInOpenInterest, bear.ImpliedVolatility = 20000, 80
	edge := contract(chain.Call, 110, 100, 1)
	edge.ChangeInOpenInterest, edge.ImpliedVolatility = 10000, 90
	lowIV := contract(chain.Put, 110, 100, 1)
	lowIV.ChangeInOpenInterest, lowIV.ImpliedVolatility = 50000, 50

	signals := DirectionalSignals([]chain.ContractSnapshot{bull, bear, edge, lowIV})
	require.Len(t, signals, 2)
	assert.Equal(t, Bullish, signals[0].Direction)
	assert.Equal(t, Bearish, signals[1].Direction)
	assert.Contains(t, signals[0].String(), "bullish")
	assert.Contains(t, signals[1].String(), "change in OI 20000")
}

func TestSummarize(t *testing.T) {
	snap := chain.ChainSnapshot{
		Symbol: "NIFTY",
		Contracts: []chain.ContractSnapshot{
			contract(chain.Call, 21700, 21800, 100),
			contract(chain.Put, 22000, 21800, 300),
		},
	}
	summary := Summarize(snap)
	assert.Equal(t, "NIFTY", summary.Symbol)
	assert.Equal(t, 2, summary.Contracts)
	assert.Equal(t, 2, summary.InTheMoney)
	assert.InDelta(t, 3.0, summary.PCR, 1e-9)
	assert.True(t, summary.HasMaxPain)
	assert.Empty(t, summary.Signals)
}

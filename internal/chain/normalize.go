package chain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryLayout is the provider's expiry date format, e.g. 31-Oct-2024.
const ExpiryLayout = "02-Jan-2006"

// Normalizer turns raw provider payloads into canonical contract snapshots.
type Normalizer struct {
	logger zerolog.Logger
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With().Str("component", "normalizer").Logger()}
}

// Normalize decodes payload and flattens it into a ChainSnapshot observed at observedAt.
// Only a structurally unusable payload is an error; bad entries are logged and skipped.
func (n *Normalizer) Normalize(symbol string, payload []byte, observedAt time.Time) (ChainSnapshot, error) {
	raw, err := DecodePayload(payload)
	if err != nil {
		return ChainSnapshot{}, err
	}

	for _, skipped := range raw.Skipped {
		n.logger.Warn().Err(skipped.Err).
			Str("symbol", symbol).
			Int("entry", skipped.Index).
			Time("observed_at", observedAt).
			Msg("skipping undecodable strike entry")
	}

	contracts, errs := Flatten(symbol, raw.Entries, observedAt)
	for _, entryErr := range errs {
		n.logger.Warn().Err(entryErr.Err).
			Str("symbol", symbol).
			Int("entry", entryErr.Index).
			Time("observed_at", observedAt).
			Msg("skipping malformed strike entry")
	}

	return ChainSnapshot{
		Symbol:      symbol,
		ObservedAt:  observedAt,
		ExpiryDates: ParseExpiries(raw.ExpiryDates),
		Contracts:   contracts,
	}, nil
}

// Flatten converts strike entries into contract snapshots in input order, CALL
// before PUT within a strike. The underlying value of a strike is taken from
// the CALL side when present, otherwise from the PUT side.
func Flatten(symbol string, entries []StrikeEntry, observedAt time.Time) ([]ContractSnapshot, []EntryError) {
	contracts := make([]ContractSnapshot, 0, len(entries)*2)
	var errs []EntryError

	for i, entry := range entries {
		if entry.Call == nil && entry.Put == nil {
			continue
		}

		var underlying float64
		if entry.Call != nil {
			underlying = float64(entry.Call.UnderlyingValue)
		} else {
			underlying = float64(entry.Put.UnderlyingValue)
		}

		built := make([]ContractSnapshot, 0, 2)
		var entryErr error
		for _, side := range []struct {
			kind OptionType
			data *SideData
		}{{Call, entry.Call}, {Put, entry.Put}} {
			if side.data == nil {
				continue
			}
			c, err := buildContract(symbol, entry, side.kind, side.data, underlying, observedAt)
			if err != nil {
				entryErr = err
				break
			}
			built = append(built, c)
		}
		if entryErr != nil {
			errs = append(errs, EntryError{Index: i, Err: entryErr})
			continue
		}
		contracts = append(contracts, built...)
	}
	return contracts, errs
}

func buildContract(symbol string, entry StrikeEntry, kind OptionType, side *SideData, underlying float64, observedAt time.Time) (ContractSnapshot, error) {
	identifier := strings.TrimSpace(side.Identifier)
	if identifier == "" {
		return ContractSnapshot{}, fmt.Errorf("%s side without identifier", kind)
	}

	expiryRaw := side.ExpiryDate
	if expiryRaw == "" {
		expiryRaw = entry.ExpiryDate
	}
	var expiry time.Time
	if expiryRaw != "" {
		parsed, err := time.Parse(ExpiryLayout, expiryRaw)
		if err != nil {
			return ContractSnapshot{}, fmt.Errorf("%s expiry %q: %w", kind, expiryRaw, err)
		}
		expiry = parsed
	}

	strike := entry.StrikePrice
	if strike == 0 {
		strike = side.StrikePrice
	}

	indexName := side.Underlying
	if indexName == "" {
		indexName = symbol
	}

	return ContractSnapshot{
		Identifier:           identifier,
		IndexName:            indexName,
		OptionType:           kind,
		StrikePrice:          int64(math.Round(float64(strike))),
		ExpiryDate:           expiry,
		UnderlyingValue:      underlying,
		OpenInterest:         float64(side.OpenInterest),
		ChangeInOpenInterest: float64(side.ChangeInOpenInterest),
		PercentChange:        float64(side.PercentChange),
		ImpliedVolatility:    float64(side.ImpliedVolatility),
		LastPrice:            float64(side.LastPrice),
		TotalTradedVolume:    float64(side.TotalTradedVolume),
		TotalBuyQuantity:     float64(side.TotalBuyQuantity),
		TotalSellQuantity:    float64(side.TotalSellQuantity),
		BidPrice:             float64(side.BidPrice),
		BidQuantity:          float64(side.BidQuantity),
		AskPrice:             float64(side.AskPrice),
		AskQuantity:          float64(side.AskQuantity),
		ObservedAt:           observedAt,
	}, nil
}

// ParseExpiries parses and sorts provider expiry dates, dropping unparseable values.
func ParseExpiries(values []string) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := time.Parse(ExpiryLayout, strings.TrimSpace(v))
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NearestExpiry returns the earliest expiry among the contracts.
func NearestExpiry(contracts []ContractSnapshot) (time.Time, bool) {
	var nearest time.Time
	for _, c := range contracts {
		if c.ExpiryDate.IsZero() {
			continue
		}
		if nearest.IsZero() || c.ExpiryDate.Before(nearest) {
			nearest = c.ExpiryDate
		}
	}
	return nearest, !nearest.IsZero()
}

// FilterExpiry keeps the contracts expiring on expiry.
func FilterExpiry(contracts []ContractSnapshot, expiry time.Time) []ContractSnapshot {
	out := make([]ContractSnapshot, 0, len(contracts))
	for _, c := range contracts {
		if c.ExpiryDate.Equal(expiry) {
			out = append(out, c)
		}
	}
	return out
}

// IsMalformed reports whether err marks a structurally unusable payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}

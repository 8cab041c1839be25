package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload reports a payload without a usable list of strike entries.
var ErrMalformedPayload = errors.New("malformed option chain payload")

// Number decodes provider numerics that may arrive as numbers, numeric strings,
// "-" placeholders or null. Anything absent decodes to zero.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("unquote number %s: %w", s, err)
		}
		s = strings.TrimSpace(strings.ReplaceAll(unquoted, ",", ""))
		if s == "" || s == "-" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*n = Number(v)
	return nil
}

// SideData is the CE or PE half of a strike entry as published by NSE.
type SideData struct {
	Identifier           string `json:"identifier"`
	Underlying           string `json:"underlying"`
	ExpiryDate           string `json:"expiryDate"`
	StrikePrice          Number `json:"strikePrice"`
	OpenInterest         Number `json:"openInterest"`
	ChangeInOpenInterest Number `json:"changeinOpenInterest"`
	PercentChange        Number `json:"pChange"`
	TotalTradedVolume    Number `json:"totalTradedVolume"`
	ImpliedVolatility    Number `json:"impliedVolatility"`
	LastPrice            Number `json:"lastPrice"`
	TotalBuyQuantity     Number `json:"totalBuyQuantity"`
	TotalSellQuantity    Number `json:"totalSellQuantity"`
	BidQuantity          Number `json:"bidQty"`
	BidPrice             Number `json:"bidprice"`
	AskQuantity          Number `json:"askQty"`
	AskPrice             Number `json:"askPrice"`
	UnderlyingValue      Number `json:"underlyingValue"`
}

// StrikeEntry is one row of the chain. Either side may be absent.
type StrikeEntry struct {
	StrikePrice Number    `json:"strikePrice"`
	ExpiryDate  string    `json:"expiryDate"`
	Call        *SideData `json:"CE"`
	Put         *SideData `json:"PE"`
}

// EntryError records a strike entry that could not be decoded.
type EntryError struct {
	Index int
	Err   error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

// RawChain is the decoded, still provider-shaped, option chain.
type RawChain struct {
	Timestamp   string
	ExpiryDates []string
	Entries     []StrikeEntry
	Skipped     []EntryError
}

type envelope struct {
	Records *struct {
		Timestamp   string            `json:"timestamp"`
		ExpiryDates []string          `json:"expiryDates"`
		Data        []json.RawMessage `json:"data"`
	} `json:"records"`
	Filtered *struct {
		Data []json.RawMessage `json:"data"`
	} `json:"filtered"`
}

// DecodePayload decodes the option-chain JSON. The filtered view is preferred
// and the full records view is used when it is missing. Entries that fail to
// decode are collected in Skipped rather than failing the payload.
func DecodePayload(payload []byte) (RawChain, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return RawChain{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var entries []json.RawMessage
	switch {
	case env.Filtered != nil && env.Filtered.Data != nil:
		entries = env.Filtered.Data
	case env.Records != nil && env.Records.Data != nil:
		entries = env.Records.Data
	default:
		return RawChain{}, fmt.Errorf("%w: no strike entries", ErrMalformedPayload)
	}

	raw := RawChain{Entries: make([]StrikeEntry, 0, len(entries))}
	if env.Records != nil {
		raw.Timestamp = env.Records.Timestamp
		raw.ExpiryDates = env.Records.ExpiryDates
	}

	for i, msg := range entries {
		var entry StrikeEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			raw.Skipped = append(raw.Skipped, EntryError{Index: i, Err: err})
			continue
		}
		raw.Entries = append(raw.Entries, entry)
	}
	return raw, nil
}

package market

import (
	"errors"
	"fmt"
	"strings"
)

// Status defines the trading status of a pair
type Status int8

const (
	Active Status = iota // Trading enabled
	Halted               // Submissions rejected; cancels still allowed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "active":
		*s = Active
	case "halted":
		*s = Halted
	default:
		return fmt.Errorf("unknown pair status %q", b)
	}
	return nil
}

var ErrInvalidPair = errors.New("invalid pair definition")

// Pair defines a spot trading pair (e.g., BTC-USDT): the base asset is
// traded, the quote asset prices it.
type Pair struct {
	Symbol     string `json:"symbol"`     // "BTC-USDT"
	BaseAsset  string `json:"baseAsset"`  // "BTC"
	QuoteAsset string `json:"quoteAsset"` // "USDT"
	Status     Status `json:"status"`
}

// Validate checks pair parameters
func (p *Pair) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidPair)
	}
	if p.BaseAsset == "" || p.QuoteAsset == "" {
		return fmt.Errorf("%w: %s: base and quote assets are required", ErrInvalidPair, p.Symbol)
	}
	if p.BaseAsset == p.QuoteAsset {
		return fmt.Errorf("%w: %s: base and quote must differ", ErrInvalidPair, p.Symbol)
	}
	return nil
}

func (p *Pair) String() string {
	return fmt.Sprintf("%s (%s/%s, %s)", p.Symbol, p.BaseAsset, p.QuoteAsset, p.Status)
}

// ParsePairs reads a comma separated list of SYMBOL:BASE:QUOTE entries,
// e.g. "BTC-USDT:BTC:USDT,ETH-USDT:ETH:USDT". A bare "BASE-QUOTE" entry
// derives both assets from the symbol.
func ParsePairs(s string) ([]*Pair, error) {
	var pairs []*Pair
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		var p Pair
		fields := strings.Split(entry, ":")
		switch len(fields) {
		case 1:
			assets := strings.Split(fields[0], "-")
			if len(assets) != 2 {
				return nil, fmt.Errorf("%w: %q: expected BASE-QUOTE", ErrInvalidPair, entry)
			}
			p = Pair{Symbol: fields[0], BaseAsset: assets[0], QuoteAsset: assets[1]}
		case 3:
			p = Pair{Symbol: fields[0], BaseAsset: fields[1], QuoteAsset: fields[2]}
		default:
			return nil, fmt.Errorf("%w: %q: expected SYMBOL:BASE:QUOTE", ErrInvalidPair, entry)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		pairs = append(pairs, &p)
	}
	return pairs, nil
}

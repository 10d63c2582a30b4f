package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"MarketScreener/internal/model"
)

// StaticUniverse serves a fixed symbol list. Used for ad-hoc runs and tests.
type StaticUniverse struct {
	Symbols []model.Symbol
}

// FromCodes builds a static universe from bare stock codes.
func FromCodes(codes []string) *StaticUniverse {
	syms := make([]model.Symbol, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		syms = append(syms, model.Symbol{Code: c, Market: model.MarketTWSE})
	}
	return &StaticUniverse{Symbols: syms}
}

func (s *StaticUniverse) Name() string { return "static" }

func (s *StaticUniverse) List(_ context.Context) ([]model.Symbol, error) {
	if len(s.Symbols) == 0 {
		return nil, fmt.Errorf("%w: static universe is empty", ErrUniverseUnavailable)
	}
	out := make([]model.Symbol, len(s.Symbols))
	copy(out, s.Symbols)
	return out, nil
}

// CSVUniverse loads symbols from a local CSV file. Rows are
// code,name[,market] with an optional header row.
type CSVUniverse struct {
	Path string
}

func NewCSVUniverse(path string) *CSVUniverse {
	return &CSVUniverse{Path: path}
}

func (u *CSVUniverse) Name() string { return "csv" }

func (u *CSVUniverse) List(_ context.Context) ([]model.Symbol, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUniverseUnavailable, u.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrUniverseUnavailable, u.Path, err)
	}

	syms := make([]model.Symbol, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		code := strings.TrimSpace(rec[0])
		if code == "" {
			continue
		}
		if i == 0 && (strings.EqualFold(code, "code") || strings.EqualFold(code, "symbol")) {
			continue
		}
		sym := model.Symbol{Code: code, Market: model.MarketTWSE}
		if len(rec) > 1 {
			sym.Name = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 && strings.EqualFold(strings.TrimSpace(rec[2]), string(model.MarketTPEx)) {
			sym.Market = model.MarketTPEx
		}
		syms = append(syms, sym)
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("%w: no symbols in %s", ErrUniverseUnavailable, u.Path)
	}
	return syms, nil
}

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"MarketScreener/internal/model"
)

const twseISINBase = "https://isin.twse.com.tw"

// isinRow matches one security cell on the ISIN pages: a four digit stock
// code, the ideographic space U+3000, then the short name. Warrants, bonds
// and other instruments carry longer codes and fall through.
var isinRow = regexp.MustCompile(`<td[^>]*>(\d{4})\x{3000}([^<]+)</td>`)

// TwseUniverse scrapes the TWSE ISIN registry for the full list of listed
// securities. Responses are Big5 encoded HTML. Results are cached to a JSON
// file so repeated runs within CacheTTL skip the network entirely, and a
// stale cache still serves as fallback when the registry is unreachable.
type TwseUniverse struct {
	Client     *http.Client
	BaseURL    string // test override; defaults to the real registry
	IncludeOTC bool
	CacheFile  string
	CacheTTL   time.Duration
}

// NewTwseUniverse creates a registry-backed universe with optional proxy support.
func NewTwseUniverse(proxyURL string, includeOTC bool, cacheFile string, cacheTTL time.Duration) *TwseUniverse {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TwseUniverse{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		IncludeOTC: includeOTC,
		CacheFile:  cacheFile,
		CacheTTL:   cacheTTL,
	}
}

func (u *TwseUniverse) Name() string { return "twse" }

func (u *TwseUniverse) List(ctx context.Context) ([]model.Symbol, error) {
	cached, cacheErr := u.loadCache()
	if cacheErr == nil && u.CacheTTL > 0 && time.Since(cached.FetchedAt) < u.CacheTTL && len(cached.Symbols) > 0 {
		log.Printf("[INFO] Universe: %d symbols from cache (fetched %s)",
			len(cached.Symbols), cached.FetchedAt.Format("2006-01-02 15:04"))
		return cached.Symbols, nil
	}

	syms, err := u.fetchAll(ctx)
	if err != nil {
		if cacheErr == nil && len(cached.Symbols) > 0 {
			log.Printf("[WARN] Universe fetch failed (%v), serving stale cache from %s",
				err, cached.FetchedAt.Format("2006-01-02"))
			return cached.Symbols, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUniverseUnavailable, err)
	}
	u.saveCache(syms)
	return syms, nil
}

func (u *TwseUniverse) fetchAll(ctx context.Context) ([]model.Symbol, error) {
	syms, err := u.fetchBoard(ctx, "2", model.MarketTWSE)
	if err != nil {
		return nil, fmt.Errorf("listed board: %w", err)
	}
	if u.IncludeOTC {
		otc, err := u.fetchBoard(ctx, "4", model.MarketTPEx)
		if err != nil {
			return nil, fmt.Errorf("otc board: %w", err)
		}
		syms = append(syms, otc...)
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("no securities parsed from registry")
	}

	seen := make(map[string]bool, len(syms))
	out := syms[:0]
	for _, s := range syms {
		if seen[s.Code] {
			continue
		}
		seen[s.Code] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// fetchBoard downloads one ISIN page (strMode=2 listed, strMode=4 OTC) and
// extracts the four digit equity codes.
func (u *TwseUniverse) fetchBoard(ctx context.Context, mode string, market model.Market) ([]model.Symbol, error) {
	base := u.BaseURL
	if base == "" {
		base = twseISINBase
	}
	endpoint := fmt.Sprintf("%s/isin/C_public.jsp?strMode=%s", base, mode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: status %d", resp.StatusCode)
	}

	// The registry still serves Big5; transcode before matching.
	page, err := io.ReadAll(transform.NewReader(resp.Body, traditionalchinese.Big5.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("registry decode: %w", err)
	}

	matches := isinRow.FindAllStringSubmatch(string(page), -1)
	syms := make([]model.Symbol, 0, len(matches))
	for _, m := range matches {
		syms = append(syms, model.Symbol{
			Code:   m[1],
			Name:   strings.TrimSpace(m[2]),
			Market: market,
		})
	}
	return syms, nil
}

type universeCache struct {
	FetchedAt time.Time      `json:"fetched_at"`
	Symbols   []model.Symbol `json:"symbols"`
}

func (u *TwseUniverse) loadCache() (*universeCache, error) {
	if u.CacheFile == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(u.CacheFile)
	if err != nil {
		return nil, err
	}
	var c universeCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (u *TwseUniverse) saveCache(syms []model.Symbol) {
	if u.CacheFile == "" {
		return
	}
	data, err := json.MarshalIndent(universeCache{FetchedAt: time.Now(), Symbols: syms}, "", "  ")
	if err != nil {
		return
	}
	if dir := filepath.Dir(u.CacheFile); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	if err := os.WriteFile(u.CacheFile, data, 0644); err != nil {
		log.Printf("[WARN] Universe cache write failed: %v", err)
	}
}

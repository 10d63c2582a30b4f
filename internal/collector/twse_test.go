package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"MarketScreener/internal/model"
)

const listedPage = `<html><body><table>
<tr><td bgcolor=#FAFAD2>股票</td></tr>
<tr><td bgcolor=#FAFAD2>1101　台泥</td><td>TW0001101000</td></tr>
<tr><td bgcolor=#FAFAD2>2330　台積電</td><td>TW0002330008</td></tr>
<tr><td bgcolor=#FAFAD2>030001　國泰台積購01</td><td>TW17030001R6</td></tr>
</table></body></html>`

const otcPage = `<html><body><table>
<tr><td bgcolor=#FAFAD2>6488　環球晶</td><td>TW0006488000</td></tr>
</table></body></html>`

func big5(t *testing.T, page string) []byte {
	t.Helper()
	out, _, err := transform.Bytes(traditionalchinese.Big5.NewEncoder(), []byte(page))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return out
}

func newRegistry(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		switch r.URL.Query().Get("strMode") {
		case "2":
			w.Write(big5(t, listedPage))
		case "4":
			w.Write(big5(t, otcPage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTwseUniverseList(t *testing.T) {
	var hits int
	srv := newRegistry(t, &hits)

	u := &TwseUniverse{
		Client:     srv.Client(),
		BaseURL:    srv.URL,
		IncludeOTC: true,
		CacheFile:  filepath.Join(t.TempDir(), "universe.json"),
		CacheTTL:   time.Hour,
	}
	syms, err := u.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(syms) != 3 {
		t.Fatalf("expected 3 symbols (warrant excluded), got %d: %v", len(syms), syms)
	}
	want := []model.Symbol{
		{Code: "1101", Name: "台泥", Market: model.MarketTWSE},
		{Code: "2330", Name: "台積電", Market: model.MarketTWSE},
		{Code: "6488", Name: "環球晶", Market: model.MarketTPEx},
	}
	for i, w := range want {
		if syms[i] != w {
			t.Errorf("symbol %d: got %+v, want %+v", i, syms[i], w)
		}
	}
	if hits != 2 {
		t.Errorf("expected 2 registry hits (both boards), got %d", hits)
	}

	// Second run inside the TTL must be served from cache.
	syms2, err := u.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on cached run: %v", err)
	}
	if hits != 2 {
		t.Errorf("cached run should not hit the registry, got %d hits", hits)
	}
	if len(syms2) != 3 {
		t.Errorf("cached run returned %d symbols", len(syms2))
	}
}

func TestTwseUniverseSkipsOTCWhenDisabled(t *testing.T) {
	srv := newRegistry(t, nil)
	u := &TwseUniverse{Client: srv.Client(), BaseURL: srv.URL}

	syms, err := u.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range syms {
		if s.Market == model.MarketTPEx {
			t.Errorf("otc symbol %s present with IncludeOTC=false", s.Code)
		}
	}
	if len(syms) != 2 {
		t.Errorf("expected 2 listed symbols, got %d", len(syms))
	}
}

func TestTwseUniverseStaleCacheFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cacheFile := filepath.Join(t.TempDir(), "universe.json")
	stale := universeCache{
		FetchedAt: time.Now().Add(-48 * time.Hour),
		Symbols:   []model.Symbol{{Code: "2330", Name: "台積電", Market: model.MarketTWSE}},
	}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal cache: %v", err)
	}
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	u := &TwseUniverse{
		Client:    srv.Client(),
		BaseURL:   srv.URL,
		CacheFile: cacheFile,
		CacheTTL:  24 * time.Hour,
	}
	syms, err := u.List(context.Background())
	if err != nil {
		t.Fatalf("stale cache should have served as fallback: %v", err)
	}
	if len(syms) != 1 || syms[0].Code != "2330" {
		t.Errorf("unexpected fallback symbols: %v", syms)
	}
}

func TestTwseUniverseUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := &TwseUniverse{Client: srv.Client(), BaseURL: srv.URL}
	_, err := u.List(context.Background())
	if err == nil {
		t.Fatal("expected error with no cache and dead registry")
	}
	if !errors.Is(err, ErrUniverseUnavailable) {
		t.Errorf("expected ErrUniverseUnavailable, got %v", err)
	}
}

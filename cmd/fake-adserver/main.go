// ABOUTME: Minimal fake nearby-ads server for local runs and E2E testing
// ABOUTME: Usage: fake-adserver [-addr localhost:8090] [-fixture ads.yaml] [-fail-first N]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/regionsync/internal/fetch"
)

// fixture is the YAML file served as the /ads/nearby body.
// The file is re-read on every request so edits show up without a restart.
type fixture struct {
	Hash *string       `yaml:"hash"`
	Ads  []fetch.AdDTO `yaml:"ads"`
}

var defaultFixture = fixture{
	Ads: []fetch.AdDTO{
		{Token: "demo-1", StoreID: "store-1", StoreName: "Corner Bakery", Title: "Two loaves for one"},
		{Token: "demo-2", StoreID: "store-2", StoreName: "Fresh Market", Title: "Apples 20% off"},
	},
}

func main() {
	addr := flag.String("addr", "localhost:8090", "HTTP listen address")
	fixturePath := flag.String("fixture", "", "YAML fixture with hash and ads (built-in demo set if empty)")
	failFirst := flag.Int("fail-first", 0, "Answer the first N requests with 503")
	flag.Parse()

	if err := run(*addr, *fixturePath, *failFirst); err != nil {
		log.Fatal(err)
	}
}

func run(addr, fixturePath string, failFirst int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("GET /ads/nearby", newNearbyHandler(fixturePath, failFirst))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "serving /ads/nearby on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func loadFixture(path string) (*fixture, error) {
	if path == "" {
		f := defaultFixture
		return &f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return &f, nil
}

func newNearbyHandler(fixturePath string, failFirst int) http.Handler {
	var requests atomic.Int64

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		q := r.URL.Query()
		log.Printf("request %d: lat=%s lon=%s radius=%s", n, q.Get("lat"), q.Get("lon"), q.Get("radius"))

		for _, key := range []string{"lat", "lon", "radius"} {
			if _, err := strconv.ParseFloat(q.Get(key), 64); err != nil {
				http.Error(w, fmt.Sprintf("invalid %s", key), http.StatusBadRequest)
				return
			}
		}

		if n <= int64(failFirst) {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		f, err := loadFixture(fixturePath)
		if err != nil {
			log.Printf("fixture error: %v", err)
			http.Error(w, "fixture error", http.StatusInternalServerError)
			return
		}

		resp := fetch.NearbyResponse{Ads: f.Ads, Hash: f.Hash}
		if resp.Ads == nil {
			resp.Ads = []fetch.AdDTO{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("write error: %v", err)
		}
	})
}

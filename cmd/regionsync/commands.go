// ABOUTME: Operator commands that talk to a running daemon over its HTTP API
// ABOUTME: Covers health, records, regions, region state and location reports

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/regionsync/internal/config"
	"github.com/2389/regionsync/internal/server"
)

// getTokenPath returns where runToken saves the API token.
func getTokenPath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "token")
}

// apiClient calls a local daemon's HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAPIClient reads the config for the daemon address. The bearer token
// comes from REGIONSYNC_TOKEN or the saved token file.
func newAPIClient() (*apiClient, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token := os.Getenv("REGIONSYNC_TOKEN")
	if token == "" {
		if data, err := os.ReadFile(getTokenPath()); err == nil {
			token = strings.TrimSpace(string(data))
		}
	}

	return &apiClient{
		baseURL: "http://" + cfg.Server.HTTPAddr,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/ready", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}

func runRecords(ctx context.Context, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		var recs []server.RecordResponse
		if err := c.do(ctx, http.MethodGet, "/api/records", nil, &recs); err != nil {
			return err
		}
		printRecords(recs)
		return nil

	case "bookmark", "unbookmark":
		if len(args) != 2 {
			return fmt.Errorf("usage: regionsync records %s TOKEN", sub)
		}
		flag := sub == "bookmark"
		var rec server.RecordResponse
		err := c.do(ctx, http.MethodPatch, "/api/records/"+args[1],
			server.PatchRecordRequest{Bookmarked: &flag}, &rec)
		if err != nil {
			return err
		}
		printRecords([]server.RecordResponse{rec})
		return nil

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: regionsync records delete TOKEN")
		}
		if err := c.do(ctx, http.MethodDelete, "/api/records/"+args[1], nil, nil); err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("  ✓ Deleted %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown records command: %s", sub)
	}
}

func printRecords(recs []server.RecordResponse) {
	if len(recs) == 0 {
		fmt.Println("No records cached.")
		return
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	for _, r := range recs {
		cyan.Printf("%-24s", r.Token)
		if r.Bookmarked {
			yellow.Print(" ★")
		} else {
			fmt.Print("  ")
		}
		fmt.Printf(" %s", r.Title)
		gray.Printf("  (%s, fetched %s)\n", r.OwnerName, r.FetchedAt.Local().Format(time.DateTime))
	}
}

func runRegions(ctx context.Context, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		var regions []server.RegionResponse
		if err := c.do(ctx, http.MethodGet, "/api/regions", nil, &regions); err != nil {
			return err
		}
		printRegions(regions)
		return nil

	case "add":
		if len(args) < 4 || len(args) > 5 {
			return errors.New("usage: regionsync regions add ID LAT LON [RADIUS_METERS]")
		}
		req := server.PutRegionRequest{}
		if req.Lat, err = strconv.ParseFloat(args[2], 64); err != nil {
			return fmt.Errorf("invalid latitude: %w", err)
		}
		if req.Lon, err = strconv.ParseFloat(args[3], 64); err != nil {
			return fmt.Errorf("invalid longitude: %w", err)
		}
		if len(args) == 5 {
			if req.RadiusMeters, err = strconv.ParseFloat(args[4], 64); err != nil {
				return fmt.Errorf("invalid radius: %w", err)
			}
		}

		var resp server.PutRegionResponse
		if err := c.do(ctx, http.MethodPut, "/api/regions/"+args[1], req, &resp); err != nil {
			return err
		}
		if !resp.Registered {
			color.New(color.FgYellow).Println("  ! Not registered: location permission is not granted")
			return nil
		}
		color.New(color.FgGreen).Printf("  ✓ Monitoring %s\n", args[1])
		return nil

	case "remove":
		if len(args) != 2 {
			return errors.New("usage: regionsync regions remove ID")
		}
		if err := c.do(ctx, http.MethodDelete, "/api/regions/"+args[1], nil, nil); err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("  ✓ Stopped monitoring %s\n", args[1])
		return nil

	case "resync":
		var resp server.ResyncResponse
		if err := c.do(ctx, http.MethodPost, "/api/regions/resync", nil, &resp); err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("  ✓ Re-synced %d region(s)\n", resp.Synced)
		return nil

	default:
		return fmt.Errorf("unknown regions command: %s", sub)
	}
}

func printRegions(regions []server.RegionResponse) {
	if len(regions) == 0 {
		fmt.Println("No regions monitored.")
		return
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for _, r := range regions {
		cyan.Printf("%-20s", r.ID)
		fmt.Printf(" %.6f,%.6f  r=%.0fm  [%s]", r.Lat, r.Lon, r.RadiusMeters, strings.Join(r.TriggerOn, ","))
		if r.State != nil && r.State.IsInside {
			green.Print("  inside")
		} else {
			gray.Print("  outside")
		}
		fmt.Println()
	}
}

func runState(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: regionsync state REGION_ID")
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	var st server.RegionStateResponse
	if err := c.do(ctx, http.MethodGet, "/api/regions/"+args[0]+"/state", nil, &st); err != nil {
		return err
	}

	fmt.Printf("Region:     %s\n", st.RegionID)
	fmt.Printf("Inside:     %t\n", st.IsInside)
	if st.LastEnterAt != nil {
		fmt.Printf("Last enter: %s\n", st.LastEnterAt.Local().Format(time.DateTime))
	}
	return nil
}

func runLocate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: regionsync locate LAT LON")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	var resp server.LocationResponse
	if err := c.do(ctx, http.MethodPost, "/api/locations", server.LocationRequest{Lat: lat, Lon: lon}, &resp); err != nil {
		return err
	}

	if len(resp.Events) == 0 {
		fmt.Println("No boundary crossings.")
		return nil
	}
	for _, ev := range resp.Events {
		fmt.Printf("%-5s %s\n", strings.ToUpper(ev.Kind.String()), strings.Join(ev.RegionIDs, ", "))
	}
	return nil
}

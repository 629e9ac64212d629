// ABOUTME: Entry point for the regionsync daemon and its operator commands
// ABOUTME: Serves the sync pipeline and talks to a running daemon over HTTP

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/regionsync/internal/auth"
	"github.com/2389/regionsync/internal/config"
	"github.com/2389/regionsync/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _                                  
 _ __ ___  __ _(_) ___  _ __  ___ _   _ _ __   ___ 
| '__/ _ \/ _' | |/ _ \| '_ \/ __| | | | '_ \ / __|
| | |  __/ (_| | | (_) | | | \__ \ |_| | | | | (__ 
|_|  \___|\__, |_|\___/|_| |_|___/\__, |_| |_|\___|
          |___/                   |___/            
`

// getConfigPath returns the path to the daemon config file.
// Priority: REGIONSYNC_CONFIG env var > XDG_CONFIG_HOME/regionsync/regionsync.yaml > ~/.config/regionsync/regionsync.yaml
func getConfigPath() string {
	if envPath := os.Getenv("REGIONSYNC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "regionsync.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "regionsync", "regionsync.yaml")
}

// getDataPath returns the path to the regionsync data directory.
// Priority: XDG_DATA_HOME/regionsync > ~/.local/share/regionsync
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "regionsync")
}

func usage() {
	fmt.Println("Usage: regionsync <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the daemon")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  health                             Check daemon readiness")
	fmt.Println("  token --subject NAME [--scope S]   Mint an API token (scope: read or write)")
	fmt.Println("  records [list]                     List cached records")
	fmt.Println("  records bookmark|unbookmark TOKEN  Set or clear a record's bookmark")
	fmt.Println("  records delete TOKEN               Remove a cached record")
	fmt.Println("  regions [list]                     List monitored regions")
	fmt.Println("  regions add ID LAT LON [RADIUS]    Register a region")
	fmt.Println("  regions remove ID                  Stop monitoring a region")
	fmt.Println("  regions resync                     Re-sync every occupied region")
	fmt.Println("  state REGION_ID                    Show persisted occupancy for a region")
	fmt.Println("  locate LAT LON                     Report a device location")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(args)
	case "records":
		err = runRecords(ctx, args)
	case "regions":
		err = runRegions(ctx, args)
	case "state":
		err = runState(ctx, args)
	case "locate":
		err = runLocate(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Ads API:   %s\n", cfg.Fetch.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Regions:   %d static", len(cfg.Regions.Static))
	if !cfg.Regions.LocationPermission {
		yellow.Print(" [location permission off]")
	}
	fmt.Println()
	if cfg.Resync.Interval > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Resync:    every %s\n", cfg.Resync.Interval)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! API auth disabled (no jwt_secret)")
	}

	fmt.Println()

	logger.Info("starting regionsync",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runToken mints a JWT signed with the configured secret and saves it next to
// the config file so the other commands pick it up.
func runToken(args []string) error {
	subject := ""
	scope := auth.ScopeRead
	ttl := 30 * 24 * time.Hour

	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		var err error
		switch {
		case arg == "--subject" || arg == "-s":
			subject, err = next()
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--scope":
			scope, err = next()
		case strings.HasPrefix(arg, "--scope="):
			scope = strings.TrimPrefix(arg, "--scope=")
		case arg == "--ttl":
			var raw string
			if raw, err = next(); err == nil {
				ttl, err = time.ParseDuration(raw)
			}
		case strings.HasPrefix(arg, "--ttl="):
			ttl, err = time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		if err != nil {
			return err
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}
	if scope != auth.ScopeRead && scope != auth.ScopeWrite {
		return fmt.Errorf("--scope must be %s or %s", auth.ScopeRead, auth.ScopeWrite)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(subject, []string{scope}, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := getTokenPath()
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Saved %s token for %s: %s\n", scope, subject, tokenPath)
	fmt.Printf("  Expires: %s\n", time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("regionsync configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "regionsync.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	dbDriver := prompt(reader, "SQLite driver (sqlite/sqlite3)", config.DefaultDatabaseDriver)

	fmt.Println("\n--- Ads API ---")
	baseURL := prompt(reader, "Base URL", "http://localhost:8090")
	radius := prompt(reader, "Search radius (miles)", "1")

	fmt.Println("\n--- Regions ---")
	permission := prompt(reader, "Location permission granted?", "yes")
	locationPermission := strings.ToLower(permission) == "yes" || strings.ToLower(permission) == "y"
	resync := prompt(reader, "Periodic resync interval (0 to disable)", "0")

	fmt.Println("\n--- Auth ---")
	enableAuth := prompt(reader, "Require API tokens?", "yes")
	var jwtSecret string
	if strings.ToLower(enableAuth) == "yes" || strings.ToLower(enableAuth) == "y" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# regionsync configuration\n")
	cfg.WriteString("# Generated by regionsync init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", dbDriver))
	cfg.WriteString("\n")

	cfg.WriteString("fetch:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	cfg.WriteString(fmt.Sprintf("  radius_miles: %s\n", radius))
	cfg.WriteString("  timeout: \"10s\"\n")
	cfg.WriteString("  retry:\n")
	cfg.WriteString("    max_attempts: 1\n")
	cfg.WriteString("\n")

	cfg.WriteString("dispatcher:\n")
	cfg.WriteString(fmt.Sprintf("  workers: %d\n", config.DefaultWorkers))
	cfg.WriteString(fmt.Sprintf("  queue_size: %d\n", config.DefaultQueueSize))
	cfg.WriteString("  dedupe_ttl: \"2m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("regions:\n")
	cfg.WriteString(fmt.Sprintf("  location_permission: %t\n", locationPermission))
	cfg.WriteString(fmt.Sprintf("  default_radius_meters: %d\n", config.DefaultRegionRadiusMeters))
	cfg.WriteString("  initial_trigger_enter: true\n")
	cfg.WriteString("  static: []\n")
	cfg.WriteString("\n")

	cfg.WriteString("resync:\n")
	cfg.WriteString(fmt.Sprintf("  interval: \"%s\"\n", resync))
	cfg.WriteString("\n")

	if jwtSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	// Validate before writing so a typo never lands on disk.
	if _, err := config.Parse([]byte(cfg.String()), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the daemon:")
	fmt.Printf("  regionsync serve\n")
	if jwtSecret != "" {
		fmt.Println("\nTo mint an API token:")
		fmt.Printf("  regionsync token --subject $USER --scope write\n")
	}

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

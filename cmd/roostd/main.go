// ABOUTME: Entry point for the roostd orchestration daemon
// ABOUTME: Supervises agent worker processes and serves the observer API

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/roost/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _
  _ __ ___   ___  ___ ___| |_
 | '__/ _ \ / _ \/ __|  _| _ |
 | | | (_) | (_) \__ \ |_ |_| |
 |_|  \___/ \___/|___/\__|___/
`

// getConfigPath returns the path to the daemon config file.
// Priority: ROOST_CONFIG env var > XDG_CONFIG_HOME/roost/roostd.yaml > ~/.config/roost/roostd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ROOST_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "roostd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "roost", "roostd.yaml")
}

// getDataPath returns the path to the roost data directory.
// Priority: XDG_DATA_HOME/roost > ~/.local/share/roost
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "roost")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: roostd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the orchestration daemon")
		fmt.Println("  init      Create a new config file")
		fmt.Println("  health    Check daemon health")
		fmt.Println("  version   Print version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when no file
// exists at the resolved path.
func loadConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	content := `# roostd configuration
server:
  http_addr: "127.0.0.1:7433"

database:
  # Defaults to $XDG_DATA_HOME/roost/roost.db when empty.
  path: ""

logging:
  level: "info"
  format: "text"

provider:
  binary: "claude"
  model: "sonnet"
  judgment_model: "haiku"

orchestrator:
  orphan_poll_interval: "30s"
  activity_window: "45s"
  watchdog_window: "90s"
  permission_timeout: "5m"
  judgment_timeout: "30s"
  # context_probe_interval: "5m"
  dedupe_max_entries: 256
  task_truncate_len: 120
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/agents", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

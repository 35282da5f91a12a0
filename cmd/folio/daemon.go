package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/engine"
)

const (
	probeTimeout    = 2 * time.Second
	statusListLimit = 100
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running folio server",
	RunE: func(*cobra.Command, []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show folio system status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showStatus(cmd.Context())
	},
}

// pidFile records the server's process id inside the data directory.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "folio.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p pidFile) read() (int, error) {
	raw, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

func (p pidFile) remove() {
	os.Remove(string(p))
}

func localURL(cfg config.Config, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Server.Port, path)
}

// probe issues a GET and reports the status code, or 0 when nothing answered.
func probe(url string) int {
	resp, err := (&http.Client{Timeout: probeTimeout}).Get(url)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func refuseSecondInstance(cfg config.Config, pid pidFile) error {
	if probe(localURL(cfg, "/health")) == 0 {
		return nil
	}
	if n, err := pid.read(); err == nil {
		return fmt.Errorf("folio is already running (PID %d)", n)
	}
	return fmt.Errorf("folio is already running on port %d", cfg.Server.Port)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pid := pidFileIn(cfg.Storage.DataDir)
	n, err := pid.read()
	if err != nil {
		return fmt.Errorf("folio is not running (no PID file): %w", err)
	}
	proc, err := os.FindProcess(n)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		pid.remove()
		return fmt.Errorf("stopping folio (PID %d): %w", n, err)
	}
	notify(toneOK, "Sent stop signal to folio (PID %d)", n)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		notify(toneFail, "config error: %v", err)
		return nil
	}

	code := probe(localURL(cfg, "/health"))
	switch code {
	case 0:
		fieldf("Server", "stopped")
	case http.StatusOK:
		fieldf("Server", "running on port %d", cfg.Server.Port)
	default:
		fieldf("Server", "error (HTTP %d)", code)
	}

	fieldf("Provider", "%s", cfg.Generator.Provider)
	fieldf("Model", "%s", cmpOr(cfg.Generator.Model, "(provider default)"))
	if cfg.Generator.Provider == engine.ProviderOllama {
		if probe(cfg.Ollama.BaseURL+"/api/version") == 0 {
			fieldf("Ollama", "not running")
		} else {
			fieldf("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}
	if cfg.Cache.RedisURL != "" {
		fieldf("Plan cache", "redis (ttl %s)", cfg.Cache.TTL)
	} else {
		fieldf("Plan cache", "disabled")
	}
	if code == http.StatusOK {
		if n, err := countPortfolios(ctx); err == nil {
			fieldf("Portfolios", "%s", countLabel(n, statusListLimit))
		}
	}
	fieldf("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countPortfolios(ctx context.Context) (int, error) {
	c, err := newAPIClient()
	if err != nil {
		return 0, err
	}
	var page struct {
		Portfolios []json.RawMessage `json:"portfolios"`
	}
	path := fmt.Sprintf("/portfolios?limit=%d", statusListLimit)
	if err := c.call(ctx, http.MethodGet, path, nil, &page); err != nil {
		return 0, err
	}
	return len(page.Portfolios), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return strconv.Itoa(count) + "+"
	}
	return strconv.Itoa(count)
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

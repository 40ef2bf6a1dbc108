package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/gomega"

	catalogapp "github.com/stacklok/catalog-aggregator/internal/app"
	"github.com/stacklok/catalog-aggregator/internal/config"
)

// Repo mirrors one element of the /api/repos response
type Repo struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data"`
}

// ServerTestHelper manages the catalog API server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *catalogapp.CatalogApp
}

// NewServerTestHelper creates a new server test helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) (*ServerTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to reserve a port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, fmt.Errorf("failed to release port: %w", err)
	}

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    "http://" + address,
		address:    address,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// StartServer starts the catalog API server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := catalogapp.NewCatalogApp(s.ctx,
		catalogapp.WithConfig(cfg),
		catalogapp.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	s.app = app

	// Start the server in a goroutine (non-blocking)
	go func() {
		if err := app.Start(); err != nil {
			// The test will fail when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the catalog API server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Get makes a GET request to path on the server
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// GetRepos makes a GET request to /api/repos and decodes the listing
func (s *ServerTestHelper) GetRepos() ([]Repo, *http.Response, error) {
	resp, err := s.Get("/api/repos")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("failed to read body: %w", err)
	}

	var repos []Repo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, resp, fmt.Errorf("failed to decode repos %q: %w", string(body), err)
	}
	return repos, resp, nil
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

// ConfigOptions holds the optional sections written by WriteConfigYAML
type ConfigOptions struct {
	FetchTimeout string
	Suffixes     []string
	CacheTTL     string
	StaticDir    string
}

// WriteConfigYAML writes a YAML configuration file for testing and returns its path
func WriteConfigYAML(dir string, sources []string, opts ConfigOptions) string {
	var b strings.Builder

	b.WriteString("sources:\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "  - %q\n", src)
	}

	if opts.FetchTimeout != "" || len(opts.Suffixes) > 0 {
		b.WriteString("fetch:\n")
		if opts.FetchTimeout != "" {
			fmt.Fprintf(&b, "  timeout: %q\n", opts.FetchTimeout)
		}
		if len(opts.Suffixes) > 0 {
			b.WriteString("  suffixes:\n")
			for _, suffix := range opts.Suffixes {
				fmt.Fprintf(&b, "    - %q\n", suffix)
			}
		}
	}

	if opts.CacheTTL != "" {
		fmt.Fprintf(&b, "cache:\n  ttl: %q\n", opts.CacheTTL)
	}

	if opts.StaticDir != "" {
		fmt.Fprintf(&b, "server:\n  staticDir: %q\n", opts.StaticDir)
	}

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(b.String()), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	return configPath
}

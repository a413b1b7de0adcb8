package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/resilience"
)

const (
	// DefaultBaseURL is the runtime API of a local deployment.
	DefaultBaseURL = "http://localhost:11434"

	// UpstreamName identifies the runtime in the resilience registry.
	UpstreamName = "runtime"

	maxResponseBytes = 1 << 20
)

// ErrUnreachable is returned when none of the runtime endpoints answered.
var ErrUnreachable = errors.New("could not reach the model runtime")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the runtime client.
type ClientConfig struct {
	// BaseURL is the runtime base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a circuit-protected client is created.
	HTTPClient HTTPDoer

	// Timeout for individual requests (default: 5s).
	Timeout time.Duration

	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Client reads the runtime inventory.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a runtime client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:     UpstreamName,
			Timeout:  timeout,
			Registry: cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Inventory fetches installed models, loaded models and the version
// concurrently. Each endpoint fails independently. ErrUnreachable is
// returned only when all three failed.
func (c *Client) Inventory(ctx context.Context) (Inventory, error) {
	var (
		wg      sync.WaitGroup
		tags    struct{ Models []Model `json:"models"` }
		ps      struct{ Models []LoadedModel `json:"models"` }
		version map[string]json.RawMessage
		errTags error
		errPs   error
		errVer  error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		errTags = c.get(ctx, "/api/tags", &tags)
	}()
	go func() {
		defer wg.Done()
		errPs = c.get(ctx, "/api/ps", &ps)
	}()
	go func() {
		defer wg.Done()
		errVer = c.get(ctx, "/api/version", &version)
	}()
	wg.Wait()

	inv := Inventory{
		Installed: []Model{},
		Running:   []LoadedModel{},
		FetchedAt: c.now().UTC(),
	}
	if errTags != nil {
		inv.setError(SectionInstalled, "failed to load installed models")
	} else if tags.Models != nil {
		inv.Installed = tags.Models
	}
	if errPs != nil {
		inv.setError(SectionRunning, "failed to load running models")
	} else if ps.Models != nil {
		inv.Running = ps.Models
	}
	if errVer != nil {
		inv.setError(SectionVersion, "failed to load version")
	} else {
		inv.Version = version
	}

	if !inv.Reachable() {
		return inv, errors.Join(ErrUnreachable, errTags, errPs, errVer)
	}
	return inv, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Dur("duration", time.Since(start)).Msg("runtime unreachable")
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("runtime returned error")
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

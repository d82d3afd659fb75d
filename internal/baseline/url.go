package baseline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/semsync/internal/version"
)

// maxManifestBytes caps the size of a fetched manifest.
const maxManifestBytes = 1 << 20

// httpClient is a lazily-initialized retryablehttp client shared across all
// URL baseline fetches.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.RetryWaitMin = 200 * time.Millisecond
		httpClient.RetryWaitMax = 2 * time.Second
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// URL resolves the baseline by downloading the trunk's canonical manifest.
type URL struct {
	// Location is the manifest URL.
	Location string
	// Client overrides the shared HTTP client; used by tests.
	Client *retryablehttp.Client
}

// Resolve fetches and parses the manifest. A 404 means the trunk has no
// manifest yet and yields no baseline.
func (u *URL) Resolve(ctx context.Context) (*version.Version, error) {
	client := u.Client
	if client == nil {
		client = getHTTPClient()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Location, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		slog.Info("trunk manifest not found, baseline check disabled", "url", u.Location)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: status %d", u.Location, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", u.Location, err)
	}
	if len(body) > maxManifestBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", u.Location, maxManifestBytes)
	}

	v, err := parse(u.Location, body)
	if err != nil {
		return nil, err
	}
	slog.Info("resolved baseline", "version", v.String(), "url", u.Location)
	return v, nil
}

package downloader

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultResolverBaseURL is the DOI resolution endpoint.
const DefaultResolverBaseURL = "https://doi.org"

// Resolver resolves a DOI to the publisher landing URL by following the
// doi.org redirect chain.
type Resolver struct {
	baseURL string
	client  *http.Client
}

// NewResolver returns a Resolver using the given client. An empty baseURL
// selects doi.org.
func NewResolver(client *http.Client, baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = DefaultResolverBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		baseURL: baseURL,
		client:  client,
	}
}

// RedirectURL returns the final URL the DOI resolves to.
func (r *Resolver) RedirectURL(ctx context.Context, doi string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/%s", r.baseURL, doi), nil)
	if err != nil {
		return "", fmt.Errorf("building resolve request for doi %s : %w", doi, err)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolving doi %s : %w", doi, err)
	}
	defer res.Body.Close()

	return res.Request.URL.String(), nil
}

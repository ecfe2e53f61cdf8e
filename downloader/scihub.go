package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultSciHubBaseURL is the Sci-Hub mirror queried by default.
const DefaultSciHubBaseURL = "https://sci-hub.se"

// pdfLocationPattern extracts the embedded PDF path from a Sci-Hub article page.
var pdfLocationPattern = regexp.MustCompile(`location\.href='(/[^']*)'`)

const scihubRetryLimit = 4

// SciHub fetches PDFs by scraping the Sci-Hub article page for the
// embedded document URL.
type SciHub struct {
	baseURL string
	client  *http.Client
}

var _ Downloader = (*SciHub)(nil)

// NewSciHub returns a Sci-Hub downloader using the given client. An empty
// baseURL selects the default mirror.
func NewSciHub(client *http.Client, baseURL string) *SciHub {
	if baseURL == "" {
		baseURL = DefaultSciHubBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SciHub{
		baseURL: baseURL,
		client:  client,
	}
}

// Name implements the Downloader interface.
func (s *SciHub) Name() string {
	return "sci-hub"
}

// FetchPDF implements the Downloader interface. It loads the article page,
// extracts the PDF location and downloads it, retrying transient
// connection failures with exponential backoff.
func (s *SciHub) FetchPDF(ctx context.Context, doi string) (io.ReadCloser, error) {
	log.Printf("fetching pdf for doi %s from sci-hub", doi)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", s.baseURL, doi), nil)
	if err != nil {
		return nil, fmt.Errorf("building sci-hub page request for doi %s : %w", doi, err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sci-hub page for doi %s : %w", doi, err)
	}
	defer res.Body.Close()

	page, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading sci-hub page for doi %s : %w", doi, err)
	}

	match := pdfLocationPattern.FindSubmatch(page)
	if match == nil {
		log.Printf("no pdf found for doi %s on sci-hub", doi)
		return nil, ErrUnavailable
	}

	pdfURL := s.pdfURL(string(match[1]))
	return s.fetchPDFWithRetry(ctx, pdfURL)
}

// pdfURL constructs the full PDF URL from the matched page location.
func (s *SciHub) pdfURL(location string) string {
	if strings.HasPrefix(location, "//") {
		return "https:" + location
	}
	return s.baseURL + location
}

// fetchPDFWithRetry downloads the PDF URL, retrying connection failures
// with increasing delay. A non-200 response means Sci-Hub does not serve
// the document and is not retried.
func (s *SciHub) fetchPDFWithRetry(ctx context.Context, pdfURL string) (io.ReadCloser, error) {
	var body io.ReadCloser

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("building sci-hub pdf request %s : %w", pdfURL, err))
			}

			res, err := s.client.Do(req)
			if err != nil {
				return fmt.Errorf("fetching pdf from sci-hub %s : %w", pdfURL, err)
			}
			if res.StatusCode != http.StatusOK {
				res.Body.Close()
				log.Printf("failed to fetch pdf from sci-hub %s : status %d", pdfURL, res.StatusCode)
				return retry.Unrecoverable(ErrUnavailable)
			}

			body = res.Body
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(scihubRetryLimit),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, ErrUnavailable
		}
		return nil, err
	}

	return body, nil
}

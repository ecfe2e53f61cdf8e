package downloader

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const (
	// IEEEHostname is the public IEEE Xplore host a DOI redirect must land
	// on for the IEEE downloaders to handle it.
	IEEEHostname = "ieeexplore.ieee.org"

	// CAPESHostname is the IEEE Xplore host behind the CAPES EZproxy.
	CAPESHostname = "ieeexplore-ieee-org.ez27.periodicos.capes.gov.br"
)

// IEEE fetches PDFs from IEEE Xplore. The DOI is resolved through doi.org;
// when the landing page is on IEEE Xplore, the document ID from the
// redirect URL is turned into a stampPDF download. The CAPES variant
// fetches the same document through the institutional EZproxy hostname
// (its client must be routed through the upstream proxy).
type IEEE struct {
	name        string
	hostname    string
	landingHost string
	pdfBase     string
	resolver    *Resolver
	client      *http.Client
}

var _ Downloader = (*IEEE)(nil)

// NewIEEE returns a downloader that fetches directly from IEEE Xplore.
func NewIEEE(client *http.Client, resolver *Resolver) *IEEE {
	return newIEEE("ieee", IEEEHostname, client, resolver)
}

// NewCAPES returns a downloader that fetches IEEE documents through the
// CAPES EZproxy hostname.
func NewCAPES(client *http.Client, resolver *Resolver) *IEEE {
	return newIEEE("capes", CAPESHostname, client, resolver)
}

func newIEEE(name, hostname string, client *http.Client, resolver *Resolver) *IEEE {
	if client == nil {
		client = http.DefaultClient
	}
	if resolver == nil {
		resolver = NewResolver(client, "")
	}
	return &IEEE{
		name:        name,
		hostname:    hostname,
		landingHost: IEEEHostname,
		pdfBase:     "https://" + hostname,
		resolver:    resolver,
		client:      client,
	}
}

// Name implements the Downloader interface.
func (d *IEEE) Name() string {
	return d.name
}

// pdfURL constructs the stampPDF URL for a given document ID.
func (d *IEEE) pdfURL(docID string) string {
	return fmt.Sprintf("%s/stampPDF/getPDF.jsp?tp=&arnumber=%s", d.pdfBase, docID)
}

// FetchPDF implements the Downloader interface.
func (d *IEEE) FetchPDF(ctx context.Context, doi string) (io.ReadCloser, error) {
	log.Printf("fetching pdf for doi %s from %s", doi, d.name)

	redirectURL, err := d.resolver.RedirectURL(ctx, doi)
	if err != nil {
		return nil, fmt.Errorf("resolving redirect for doi %s : %w", doi, err)
	}

	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect url %s : %w", redirectURL, err)
	}
	if parsed.Host != d.landingHost {
		log.Printf("redirect url is not on ieee xplore: %s", redirectURL)
		return nil, ErrUnavailable
	}

	docID, err := documentID(parsed.Path)
	if err != nil {
		return nil, fmt.Errorf("extracting document id from %s : %w", redirectURL, err)
	}

	log.Printf("redirect url obtained: %s, document id: %s", redirectURL, docID)
	return d.fetchPDFDocID(ctx, docID)
}

// fetchPDFDocID fetches the PDF from IEEE Xplore using the document ID.
func (d *IEEE) fetchPDFDocID(ctx context.Context, docID string) (io.ReadCloser, error) {
	pdfURL := d.pdfURL(docID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building ieee pdf request %s : %w", pdfURL, err)
	}

	res, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching pdf from %s : %w", pdfURL, err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		log.Printf("failed to fetch pdf from ieee (%s): %s, status: %d", d.hostname, pdfURL, res.StatusCode)
		return nil, ErrUnavailable
	}

	return res.Body, nil
}

// documentID extracts the document ID following the "document" segment of
// an IEEE Xplore landing path.
func documentID(path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "document" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("no document segment in path %s", path)
}

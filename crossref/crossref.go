// Package crossref resolves DOIs to bibliographic metadata through the
// doi.org content negotiation endpoint, requesting the Crossref unixref
// XML representation.
package crossref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

// DefaultBaseURL is the content negotiation endpoint queried by default.
const DefaultBaseURL = "https://doi.org"

const unixrefContentType = "application/vnd.crossref.unixref+xml"

// ErrNotFound signals that no metadata is registered for the DOI.
var ErrNotFound = errors.New("no metadata registered for this doi")

// Work holds the bibliographic fields extracted from a unixref record.
type Work struct {
	Title   string
	Journal string
	Year    string
	Authors []string
}

// Metadata renders the work as the metadata map stored on a fetch record.
// Empty fields are omitted.
func (w *Work) Metadata() map[string]any {
	metadata := map[string]any{}
	if w.Title != "" {
		metadata["title"] = w.Title
	}
	if w.Journal != "" {
		metadata["journal"] = w.Journal
	}
	if w.Year != "" {
		metadata["year"] = w.Year
	}
	if len(w.Authors) > 0 {
		authors := make([]any, len(w.Authors))
		for i, author := range w.Authors {
			authors[i] = author
		}
		metadata["authors"] = authors
	}
	return metadata
}

// Client fetches unixref records for DOIs.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a Client using the given http client. An empty baseURL
// selects doi.org.
func NewClient(client *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		client:  client,
	}
}

// Resolve fetches and parses the unixref record for the DOI. It returns
// ErrNotFound when the registry has no record for it.
func (c *Client) Resolve(ctx context.Context, doi string) (*Work, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, doi), nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request for doi %s : %w", doi, err)
	}
	req.Header.Set("Accept", unixrefContentType)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for doi %s : %w", doi, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching metadata for doi %s : unexpected status %d", doi, res.StatusCode)
	}

	record, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading metadata for doi %s : %w", doi, err)
	}

	return parseUnixref(record)
}

// parseUnixref extracts the work fields from a unixref XML record. Journal
// and conference records place the fields under different elements, so
// every known location is tried in order.
func parseUnixref(record []byte) (*Work, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(record); err != nil {
		return nil, fmt.Errorf("parsing unixref record : %w", err)
	}

	work := &Work{
		Title:   firstText(doc, "//journal_article/titles/title", "//conference_paper/titles/title", "//book/book_metadata/titles/title"),
		Journal: firstText(doc, "//journal_metadata/full_title", "//proceedings_metadata/proceedings_title"),
		Year:    firstText(doc, "//publication_date/year"),
	}

	for _, person := range doc.FindElements("//contributors/person_name") {
		if person.SelectAttrValue("contributor_role", "author") != "author" {
			continue
		}
		given := elementText(person, "given_name")
		surname := elementText(person, "surname")
		name := strings.TrimSpace(given + " " + surname)
		if name != "" {
			work.Authors = append(work.Authors, name)
		}
	}

	return work, nil
}

// firstText returns the text of the first path that matches an element.
func firstText(doc *etree.Document, paths ...string) string {
	for _, path := range paths {
		if element := doc.FindElement(path); element != nil {
			return strings.TrimSpace(element.Text())
		}
	}
	return ""
}

func elementText(parent *etree.Element, tag string) string {
	if element := parent.SelectElement(tag); element != nil {
		return strings.TrimSpace(element.Text())
	}
	return ""
}

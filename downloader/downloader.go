// Package downloader contains the sources sciproxy can fetch article PDFs
// from. Each source implements the Downloader interface; the service tries
// them in order until one produces a document.
package downloader

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable signals that a source cannot provide the requested DOI.
// The fetch pipeline treats it as "try the next source" rather than as a
// hard failure.
var ErrUnavailable = errors.New("source cannot provide this doi")

// Downloader fetches the PDF for a DOI from a single source.
type Downloader interface {
	// Name returns the stable identifier of the source, used in fetch
	// records and for runtime disabling.
	Name() string

	// FetchPDF retrieves the PDF for the given DOI. It returns
	// ErrUnavailable when the source does not carry the document; any
	// other error is an upstream failure. The caller owns the returned
	// body and must close it.
	FetchPDF(ctx context.Context, doi string) (io.ReadCloser, error)
}

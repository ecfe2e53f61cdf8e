package sciproxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/andybalholm/brotli"
	utls "github.com/refraction-networking/utls"
)

// userAgent is sent on every outgoing request so publisher sites treat the
// service like a regular browser, matching the Chrome TLS fingerprint the
// transport presents.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// sciproxyRoundTripper sets the browser headers and decompresses response
// bodies so callers always read plain content.
type sciproxyRoundTripper struct {
	base http.RoundTripper
}

// newTransport builds the outgoing transport. Direct connections handshake
// with a Chrome TLS fingerprint through utls; when an upstream proxy is
// given, requests tunnel through it with plain TLS instead, since the
// custom dialer bypasses http.Transport's proxy handling.
func newTransport(upstream *Upstream) http.RoundTripper {
	transport := &http.Transport{}

	if upstream != nil {
		transport.Proxy = http.ProxyURL(upstream.URL())
		return &sciproxyRoundTripper{base: transport}
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		sniHost, _, err := net.SplitHostPort(addr)
		if err != nil {
			sniHost = addr
		}

		uTlsConfig := &utls.Config{
			ServerName: sniHost,
		}

		uConn := utls.UClient(tcpConn, uTlsConfig, utls.HelloChrome_Auto)

		if err := uConn.BuildHandshakeState(); err != nil {
			return nil, fmt.Errorf("building handshake state : %w", err)
		}

		// HelloChrome_Auto ignores uTlsConfig.NextProtos and accepts H2.
		// Loop over the TLSExtensions and pin the ALPNExtension to
		// http/1.1 only. This must happen before .HandshakeContext
		foundALPN := false
		for _, ext := range uConn.Extensions {
			if alpnExt, ok := ext.(*utls.ALPNExtension); ok {
				alpnExt.AlpnProtocols = []string{"http/1.1"}
				foundALPN = true
				break
			}
		}

		if !foundALPN {
			return nil, errors.New("could not find ALPNExtension")
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			tcpConn.Close()
			return nil, err
		}

		return uConn, nil
	}

	return &sciproxyRoundTripper{base: transport}
}

// NewClient returns an HTTP client using the sciproxy transport. A nil
// upstream yields a direct client.
func NewClient(upstream *Upstream) *http.Client {
	return &http.Client{
		Transport: newTransport(upstream),
	}
}

// RoundTrip satisfies http.RoundTripper. It sets the browser User-Agent
// and advertised encodings, then inflates gzip and brotli bodies.
func (s *sciproxyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	res, err := s.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(res); err != nil {
		res.Body.Close()
		return nil, err
	}
	return res, nil
}

// decompressResponse replaces res.Body with the decompressed data and
// removes the Content-Encoding header. Gzip and br bodies are handled.
func decompressResponse(res *http.Response) error {
	if res.Header.Get("Content-Encoding") == "" || res.Body == nil {
		return nil
	}

	switch res.Header.Get("Content-Encoding") {
	case "gzip":
		defer res.Body.Close()

		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzipReader.Close()

		decompressedBody, err := io.ReadAll(gzipReader)
		if err != nil {
			return fmt.Errorf("reading gzip content: %w", err)
		}

		res.Body = io.NopCloser(bytes.NewReader(decompressedBody))
		res.ContentLength = int64(len(decompressedBody))
		res.Header.Set("Content-Length", fmt.Sprintf("%d", len(decompressedBody)))
		res.Header.Del("Content-Encoding")
	case "br":
		defer res.Body.Close()

		brotliReader := brotli.NewReader(res.Body)

		decompressedBody, err := io.ReadAll(brotliReader)
		if err != nil {
			return fmt.Errorf("reading brotli content : %w", err)
		}

		res.Body = io.NopCloser(bytes.NewReader(decompressedBody))
		res.ContentLength = int64(len(decompressedBody))
		res.Header.Set("Content-Length", fmt.Sprintf("%d", len(decompressedBody)))
		res.Header.Del("Content-Encoding")
	}
	return nil
}

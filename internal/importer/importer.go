// Package importer fetches raw tabular content from external URLs and parses
// it into rows. It knows how to rewrite Google Sheets view links into direct
// export links so operators can paste the URL straight from the browser.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tabwell/tabsync/internal/source"
)

// ErrEmptyResponse indicates the download succeeded but the body was empty.
var ErrEmptyResponse = errors.New("empty response body")

// HTTPError reports a non-2xx response status.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("download %s: HTTP %d", e.URL, e.Status)
}

// MaxBodySize caps downloaded content (50MB). Feeds beyond this are a
// configuration mistake, not a real dataset.
var MaxBodySize int64 = 50 * 1024 * 1024

// sheetEditURL recognizes a Google Sheets document link and captures the
// document id. Covers /edit, /view and bare document URLs.
var sheetEditURL = regexp.MustCompile(`^(https?://docs\.google\.com/spreadsheets/d/[^/?#]+)`)

// gidFragment captures an explicit sheet tab id from the query or fragment.
var gidFragment = regexp.MustCompile(`gid=(\d+)`)

// ResolveExportURL rewrites a Google Sheets view/edit URL into a direct
// tabular export URL for the given content type. URLs that already carry an
// explicit export marker, and URLs that are not Sheets links, are returned
// unchanged.
func ResolveExportURL(rawURL string, ct source.ContentType) string {
	if strings.Contains(rawURL, "/export") {
		return rawURL
	}
	m := sheetEditURL.FindStringSubmatch(rawURL)
	if m == nil {
		return rawURL
	}

	format := "csv"
	if ct == source.ContentTSV {
		format = "tsv"
	}
	out := m[1] + "/export?format=" + format
	if g := gidFragment.FindStringSubmatch(rawURL); g != nil {
		out += "&gid=" + g[1]
	}
	return out
}

// Client downloads source content over HTTP with bounded timeouts.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with the given connect and overall timeouts.
// Redirects are followed (Sheets export URLs redirect at least once).
func NewClient(connectTimeout, totalTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if totalTimeout <= 0 {
		totalTimeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
	}
}

// Download performs a GET against the URL and returns the body bytes.
// Fails with a transport error on network failure, *HTTPError on a non-2xx
// status, and ErrEmptyResponse on an empty body.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}

	return sanitizeUTF8(body), nil
}

// Delimiter returns the cell delimiter for a content type.
func Delimiter(ct source.ContentType) rune {
	if ct == source.ContentTSV {
		return '\t'
	}
	return ','
}

// Parse splits delimited text into rows of string cells. Quoting follows
// conventional CSV rules: double-quote escaping, embedded delimiters and
// newlines inside quotes. Rows may have ragged lengths.
func Parse(content []byte, delimiter rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited text: %w", err)
	}
	return records, nil
}

// Preview parses content, takes the first row as headers, and returns up to
// maxRows of the following rows. Used for interactive mapping configuration,
// never for sync.
func Preview(content []byte, delimiter rune, maxRows int) (headers []string, rows [][]string, err error) {
	records, err := Parse(content, delimiter)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("no rows in content")
	}
	headers = records[0]
	rest := records[1:]
	if maxRows > 0 && len(rest) > maxRows {
		rest = rest[:maxRows]
	}
	return headers, rest, nil
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// downstream parsing and storage always see valid UTF-8.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}

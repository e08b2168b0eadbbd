// Package tags pages through a repository's tags newest-first.
//
// Tags come from the Docker Hub repository API rather than the registry's
// /tags/list endpoint, which orders tags alphabetically.
package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Listing defaults.
const (
	DefaultHubURL   = "https://hub.docker.com"
	DefaultPageSize = 100
)

// maxPageSize caps a tag listing response body.
const maxPageSize = 8 << 20

// ErrRegistryUnavailable indicates the tag listing could not be read.
var ErrRegistryUnavailable = errors.New("tag listing unavailable")

// Errors wrapped with ErrRegistryUnavailable.
var (
	errListStatus    = errors.New("unexpected tag listing status")
	errListRequest   = errors.New("tag listing request failed")
	errListDecode    = errors.New("failed to decode tag listing")
	errListTransport = errors.New("tag listing endpoint unreachable")
)

// Doer performs HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Lister.
type Options struct {
	HubURL     string                 // Listing base URL, DefaultHubURL when empty.
	HTTPClient Doer                   // http.DefaultClient when nil.
	Timeout    time.Duration          // Per-page timeout, none when zero.
	UserAgent  string                 // User-Agent header, omitted when empty.
	PageSize   int                    // Tags per page, DefaultPageSize when zero.
	Observer   types.RegistryObserver // Optional request counter.
}

// Lister creates tag enumerators.
type Lister struct {
	opts Options
}

// NewLister returns a Lister with defaults applied to opts.
func NewLister(opts Options) *Lister {
	if opts.HubURL == "" {
		opts.HubURL = DefaultHubURL
	}

	opts.HubURL = strings.TrimSuffix(opts.HubURL, "/")

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	return &Lister{opts: opts}
}

// FirstPageURL returns the listing URL for repository, e.g. "library/nginx".
func (l *Lister) FirstPageURL(repository string) string {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(l.opts.PageSize))
	query.Set("ordering", "last_updated")

	return fmt.Sprintf("%s/v2/repositories/%s/tags/?%s", l.opts.HubURL, repository, query.Encode())
}

// Enumerate returns a fresh single-pass enumerator over repository's tags.
// No request is made until the first call to Next.
func (l *Lister) Enumerate(repository string) types.TagIterator {
	return &Enumerator{
		lister:     l,
		repository: repository,
		nextURL:    l.FirstPageURL(repository),
	}
}

// Enumerator yields a repository's tags newest-first, one page at a time.
type Enumerator struct {
	lister     *Lister
	repository string
	nextURL    string
	exhausted  bool
	buffer     []types.TagInfo
	position   int
	err        error
}

// Next returns the next tag, or nil once the listing is exhausted.
//
// A failed page fetch ends the enumeration; the error is returned again by every
// later call.
func (e *Enumerator) Next(ctx context.Context) (*types.TagInfo, error) {
	for e.position >= len(e.buffer) {
		if e.err != nil {
			return nil, e.err
		}

		if e.exhausted {
			return nil, nil //nolint:nilnil
		}

		if err := e.fetchPage(ctx); err != nil {
			e.err = err

			return nil, err
		}
	}

	tag := e.buffer[e.position]
	e.position++

	return &tag, nil
}

func (e *Enumerator) fetchPage(ctx context.Context) error {
	opts := e.lister.opts
	fields := logrus.Fields{"repository": e.repository, "url": e.nextURL}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.nextURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w: %w", ErrRegistryUnavailable, errListRequest, err)
	}

	req.Header.Set("Accept", "application/json")

	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	logrus.WithFields(fields).Debug("Fetching tag page")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		e.observe(0)

		return fmt.Errorf("%w: %w: %w", ErrRegistryUnavailable, errListTransport, err)
	}
	defer resp.Body.Close()

	e.observe(resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %w: %s for %s", ErrRegistryUnavailable, errListStatus, resp.Status, e.repository)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return fmt.Errorf("%w: %w: %w", ErrRegistryUnavailable, errListDecode, err)
	}

	var page types.TagListPage
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrRegistryUnavailable, errListDecode, err)
	}

	SortNewestFirst(page.Results)

	e.buffer = page.Results
	e.position = 0

	if page.Next == nil || *page.Next == "" {
		e.exhausted = true
	} else {
		e.nextURL = *page.Next
	}

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"tags":      len(page.Results),
		"last_page": e.exhausted,
	}).Debug("Fetched tag page")

	return nil
}

func (e *Enumerator) observe(statusCode int) {
	if e.lister.opts.Observer != nil {
		e.lister.opts.Observer.RegistryRequest("tags", statusCode)
	}
}

// SortNewestFirst stable-sorts tags by last_updated, newest first. Tags without
// a parseable date keep their relative order after the dated ones.
func SortNewestFirst(tags []types.TagInfo) {
	slices.SortStableFunc(tags, func(a, b types.TagInfo) int {
		left, leftOK := parseDate(a.LastUpdated)
		right, rightOK := parseDate(b.LastUpdated)

		switch {
		case leftOK && rightOK:
			return right.Compare(left)
		case leftOK:
			return -1
		case rightOK:
			return 1
		default:
			return 0
		}
	})
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}

	return parsed, true
}

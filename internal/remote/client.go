// Package remote implements the paginated delta client used by catalog
// synchronization. Batches are fetched from a mirror API starting at a
// watermark cursor and yielded in (change stamp, remote id) order so the
// caller can advance its watermark safely after each batch.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/ratelimit"
)

// DefaultBatchSize is the page size requested from the mirror when the
// caller does not override it.
const DefaultBatchSize = 500

// Cursor identifies the most recently absorbed record of a family. Stamp
// is inclusive on the server side; RemoteID breaks ties among records
// sharing the same stamp, so replayed edge records are cheap dedup no-ops.
type Cursor struct {
	Stamp    time.Time
	RemoteID int64
}

// Client fetches ordered record batches from a mirror API. It advances its
// own cursor to the last record of each returned batch, so repeated calls
// progress monotonically through the remote change feed.
type Client struct {
	baseURL   string
	family    catalog.Family
	batchSize int
	cursor    Cursor
	http      *http.Client
	limiter   *ratelimit.Limiter
}

// NewClient creates a delta client for one family starting at the cursor.
func NewClient(baseURL string, family catalog.Family, cursor Cursor, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		baseURL:   baseURL,
		family:    family,
		batchSize: batchSize,
		cursor:    cursor,
		http:      &http.Client{Timeout: 2 * time.Minute},
		// one request per second is polite enough for public mirrors
		limiter: ratelimit.New("mirror", 1),
	}
}

// Cursor returns the client's current position in the remote change feed.
func (c *Client) Cursor() Cursor {
	return c.cursor
}

// record is the wire shape of one mirror API record, shared by the three
// families; family-specific fields are simply absent for the others.
type record struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Series       string `json:"series"`
	Publisher    string `json:"publisher"`
	Year         string `json:"year"`
	DOI          string `json:"doi"`
	Journal      string `json:"journal"`
	Language     string `json:"language"`
	Extension    string `json:"extension"`
	MD5          string `json:"md5"`
	FileSize     int64  `json:"filesize"`
	LastModified string `json:"time_last_modified"`
	Added        string `json:"time_added"`
}

// NextBatch fetches the next page of the change feed. An empty result
// signals exhaustion. A cancellation during the network wait terminates
// promptly and surfaces as the context's error, never as exhaustion.
func (c *Client) NextBatch(ctx context.Context) ([]catalog.Object, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint, err := c.batchURL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// unwrap the url.Error so a cancelled wait is distinguishable
		// from a network failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to fetch batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror API returned status code %d. Response: %s", resp.StatusCode, string(body))
	}
	var records []record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	batch := make([]catalog.Object, 0, len(records))
	for _, rec := range records {
		obj, err := rec.toObject(c.family)
		if err != nil {
			return nil, fmt.Errorf("malformed record %d in batch: %w", rec.ID, err)
		}
		batch = append(batch, obj)
	}
	if len(batch) == 0 {
		return nil, nil
	}
	// The watermark only advances safely over an ordered batch. The mirror
	// is expected to order by (stamp, id); re-sort if it did not.
	if !sort.SliceIsSorted(batch, batchLess(batch)) {
		sort.SliceStable(batch, batchLess(batch))
	}
	last := batch[len(batch)-1]
	c.cursor = Cursor{Stamp: last.Stamp(), RemoteID: last.Key()}
	return batch, nil
}

func batchLess(batch []catalog.Object) func(i, j int) bool {
	return func(i, j int) bool {
		if batch[i].Stamp().Equal(batch[j].Stamp()) {
			return batch[i].Key() < batch[j].Key()
		}
		return batch[i].Stamp().Before(batch[j].Stamp())
	}
}

func (c *Client) batchURL() (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid mirror base URL: %w", err)
	}
	base = base.JoinPath("api", c.family.String())
	params := url.Values{}
	params.Add("newer", c.cursor.Stamp.Format(catalog.StampLayout))
	params.Add("after_id", strconv.FormatInt(c.cursor.RemoteID, 10))
	params.Add("limit", strconv.Itoa(c.batchSize))
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func (r record) toObject(family catalog.Family) (catalog.Object, error) {
	switch family {
	case catalog.FamilyNonFiction:
		stamp, err := parseStamp(r.LastModified)
		if err != nil {
			return nil, err
		}
		return &catalog.Book{
			RemoteID: r.ID, Title: r.Title, Authors: r.Author, Series: r.Series,
			Publisher: r.Publisher, Year: r.Year, Language: r.Language,
			Format: r.Extension, MD5: r.MD5, FileSize: r.FileSize, LastModified: stamp,
		}, nil
	case catalog.FamilyFiction:
		stamp, err := parseStamp(r.LastModified)
		if err != nil {
			return nil, err
		}
		return &catalog.FictionBook{
			RemoteID: r.ID, Title: r.Title, Authors: r.Author, Series: r.Series,
			Language: r.Language, Format: r.Extension, MD5: r.MD5,
			FileSize: r.FileSize, LastModified: stamp,
		}, nil
	case catalog.FamilyArticle:
		stamp, err := parseStamp(r.Added)
		if err != nil {
			return nil, err
		}
		return &catalog.Article{
			RemoteID: r.ID, Title: r.Title, Authors: r.Author, DOI: r.DOI,
			Journal: r.Journal, Language: r.Language, MD5: r.MD5,
			FileSize: r.FileSize, AddedAt: stamp,
		}, nil
	default:
		return nil, errors.New("unsupported family")
	}
}

func parseStamp(raw string) (time.Time, error) {
	t, err := time.Parse(catalog.StampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed change stamp %q: %w", raw, err)
	}
	return t, nil
}

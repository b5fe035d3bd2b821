package dhis2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matthewbaird/outbreak/internal/types"
)

// KeyDiseases holds the disease catalogue in the app namespace.
const KeyDiseases = "diseases"

func (c *Client) keyPath(key string) string {
	return "dataStore/" + url.PathEscape(c.namespace) + "/" + url.PathEscape(key)
}

// Catalogue reads the disease list and program configuration.
func (c *Client) Catalogue(ctx context.Context) (types.Catalogue, error) {
	var cat types.Catalogue
	if err := c.get(ctx, c.keyPath(KeyDiseases), nil, &cat); err != nil {
		return types.Catalogue{}, fmt.Errorf("read catalogue: %w", err)
	}
	return cat, nil
}

// CatalogueDocument returns the raw catalogue document for validation.
func (c *Client) CatalogueDocument(ctx context.Context) ([]byte, error) {
	var doc json.RawMessage
	if err := c.get(ctx, c.keyPath(KeyDiseases), nil, &doc); err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return doc, nil
}

// Read returns the records stored under key. A missing key is an empty
// collection.
func (c *Client) Read(ctx context.Context, key string) ([]types.Record, error) {
	var recs []types.Record
	err := c.get(ctx, c.keyPath(key), nil, &recs)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return recs, nil
}

// Write replaces the records stored under key, creating the key when it
// does not exist yet.
func (c *Client) Write(ctx context.Context, key string, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	err := c.do(ctx, http.MethodPut, c.keyPath(key), nil, records, nil)
	if IsNotFound(err) {
		err = c.do(ctx, http.MethodPost, c.keyPath(key), nil, records, nil)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

type idCodes struct {
	Codes []string `json:"codes"`
}

// Issue allocates n event ids.
func (c *Client) Issue(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var out idCodes
	q := url.Values{"limit": {strconv.Itoa(n)}}
	if err := c.get(ctx, "system/id", q, &out); err != nil {
		return nil, fmt.Errorf("issue ids: %w", err)
	}
	if len(out.Codes) < n {
		return nil, fmt.Errorf("issue ids: asked for %d, got %d", n, len(out.Codes))
	}
	return out.Codes[:n], nil
}

// PushEvents creates or updates outbreak events in the reporting program.
func (c *Client) PushEvents(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	q := url.Values{"importStrategy": {"CREATE_AND_UPDATE"}}
	if err := c.do(ctx, http.MethodPost, "events", q, types.EventBatch{Events: events}, nil); err != nil {
		return fmt.Errorf("push events: %w", err)
	}
	return nil
}

// Send posts notification messages.
func (c *Client) Send(ctx context.Context, batch types.MessageBatch) error {
	if len(batch.MessageConversations) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "messageConversations", nil, batch, nil); err != nil {
		return fmt.Errorf("send messages: %w", err)
	}
	return nil
}

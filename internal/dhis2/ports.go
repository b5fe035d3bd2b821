package dhis2

import "github.com/matthewbaird/outbreak/internal/engine"

var (
	_ engine.CatalogueSource = (*Client)(nil)
	_ engine.Analytics       = (*Client)(nil)
	_ engine.IDIssuer        = (*Client)(nil)
	_ engine.RecordStore     = (*Client)(nil)
	_ engine.EventPusher     = (*Client)(nil)
	_ engine.Notifier        = (*Client)(nil)
)

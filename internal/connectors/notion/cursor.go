package notion

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// CursorVersion is the current cursor format version.
const CursorVersion = 1

// Cursor is the position of a database query.
type Cursor struct {
	Version    int    `json:"v"`
	DatabaseID string `json:"db"`
	// StartCursor is the next_cursor of the previous query page.
	StartCursor string `json:"start"`
}

// Encode serialises the cursor to a base64 string for storage.
func (c *Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor of databaseID. An empty string is the
// first page. Errors wrap domain.ErrInvalidCursor.
func DecodeCursor(s, databaseID string) (*Cursor, error) {
	if s == "" {
		return &Cursor{Version: CursorVersion, DatabaseID: databaseID}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: notion: %w", domain.ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: notion: %w", domain.ErrInvalidCursor, err)
	}
	switch {
	case c.Version < 1 || c.Version > CursorVersion:
		return nil, fmt.Errorf("%w: notion: unsupported cursor version %d", domain.ErrInvalidCursor, c.Version)
	case c.DatabaseID != databaseID:
		return nil, fmt.Errorf("%w: notion: cursor of database %s used for %s", domain.ErrInvalidCursor, c.DatabaseID, databaseID)
	}
	return &c, nil
}

package gmail

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// CursorVersion is the current cursor format version.
const CursorVersion = 1

// Cursor is the position of a message listing.
type Cursor struct {
	// Version is the cursor format version for future compatibility.
	Version int `json:"v"`
	// Label is the label the listing belongs to.
	Label string `json:"label"`
	// PageToken is the Gmail nextPageToken of the listing.
	PageToken string `json:"page_token"`
}

// Encode serialises the cursor to a base64 string for storage.
func (c *Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor of label. An empty string is the first page.
// Errors wrap domain.ErrInvalidCursor.
func DecodeCursor(s, label string) (*Cursor, error) {
	if s == "" {
		return &Cursor{Version: CursorVersion, Label: label}, nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: gmail: %w", domain.ErrInvalidCursor, err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("%w: gmail: %w", domain.ErrInvalidCursor, err)
	}
	if cursor.Version > CursorVersion {
		return nil, fmt.Errorf("%w: gmail: unsupported cursor version %d", domain.ErrInvalidCursor, cursor.Version)
	}
	if cursor.Label != label {
		return nil, fmt.Errorf("%w: gmail: cursor of label %q used for %q", domain.ErrInvalidCursor, cursor.Label, label)
	}
	return &cursor, nil
}

package firestore

import (
	"encoding/base64"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// docID encodes a scope as a valid Firestore document ID.
func docID(scope domain.SyncScope) string {
	return base64.RawURLEncoding.EncodeToString([]byte(scope.String()))
}

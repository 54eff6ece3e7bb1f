package sqlutil

import (
	"encoding/json"
	"math"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and column types

// ToNullRawMessage converts a JSON document to a nullable jsonb value.
// A nil document is stored as NULL.
func ToNullRawMessage(data []byte) pqtype.NullRawMessage {
	if data == nil {
		return pqtype.NullRawMessage{Valid: false}
	}
	return pqtype.NullRawMessage{RawMessage: json.RawMessage(data), Valid: true}
}

// FromNullRawMessage converts a nullable jsonb value to its raw bytes
func FromNullRawMessage(val pqtype.NullRawMessage) ([]byte, bool) {
	if !val.Valid {
		return nil, false
	}
	return val.RawMessage, true
}

// ToBigint converts a revision to a BIGINT column value, clamping at the
// column maximum
func ToBigint(val uint64) int64 {
	if val > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(val)
}

// FromBigint converts a BIGINT column value to a revision; negatives read as 0
func FromBigint(val int64) uint64 {
	if val < 0 {
		return 0
	}
	return uint64(val)
}

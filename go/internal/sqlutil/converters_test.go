package sqlutil

import (
	"math"
	"testing"

	"github.com/sqlc-dev/pqtype"
)

func TestNullRawMessage(t *testing.T) {
	t.Parallel()

	if v := ToNullRawMessage(nil); v.Valid {
		t.Fatal("nil document must be NULL")
	}
	if _, ok := FromNullRawMessage(pqtype.NullRawMessage{}); ok {
		t.Fatal("NULL must not yield a document")
	}

	data, ok := FromNullRawMessage(ToNullRawMessage([]byte(`[]`)))
	if !ok || string(data) != "[]" {
		t.Fatalf("round trip = %q, %v", data, ok)
	}
}

func TestBigint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int64
		want uint64
	}{
		{"zero", 0, 0},
		{"positive", 42, 42},
		{"negative", -1, 0},
	}
	for _, tt := range tests {
		if got := FromBigint(tt.in); got != tt.want {
			t.Fatalf("%s: FromBigint(%d) = %d, want %d", tt.name, tt.in, got, tt.want)
		}
	}

	if got := ToBigint(math.MaxUint64); got != math.MaxInt64 {
		t.Fatalf("ToBigint(max) = %d, want clamp", got)
	}
	if got := ToBigint(7); got != 7 {
		t.Fatalf("ToBigint(7) = %d", got)
	}
}

package index

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestIDFromKey(t *testing.T) {
	tests := []struct {
		key    string
		wantID int64
		wantOK bool
	}{
		{"educajus:20260825t120000:49", 49, true},
		{"educajus:1", 1, true},
		{"educajus:20260825t120000:", 0, false},
		{"no-separator", 0, false},
		{"educajus:abc", 0, false},
	}

	for _, tt := range tests {
		id, ok := idFromKey(tt.key)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("idFromKey(%q) = (%d, %v), want (%d, %v)", tt.key, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestKNNSearchArgsCarryLimit(t *testing.T) {
	args := knnSearchArgs("educajus", []float32{1, 0, 0}, 50)

	if args[0] != "educajus" || args[1] != "*=>[KNN 50 @vector $BLOB]" {
		t.Fatalf("unexpected query head: %v", args[:2])
	}

	// The result window must match k, or the server pages at 10.
	var found bool
	for i := 0; i+2 < len(args); i++ {
		if args[i] == "LIMIT" && args[i+1] == "0" && args[i+2] == "50" {
			found = true
		}
	}
	if !found {
		t.Errorf("args missing LIMIT 0 50: %v", args)
	}

	if args[len(args)-2] != "DIALECT" || args[len(args)-1] != "2" {
		t.Errorf("args must end with DIALECT 2: %v", args)
	}
}

func TestVectorToBytes(t *testing.T) {
	got := []byte(vectorToBytes([]float32{1.0, -2.5}))
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}

	first := math.Float32frombits(binary.LittleEndian.Uint32(got[:4]))
	second := math.Float32frombits(binary.LittleEndian.Uint32(got[4:]))
	if first != 1.0 || second != -2.5 {
		t.Errorf("decoded = (%v, %v), want (1, -2.5)", first, second)
	}
}

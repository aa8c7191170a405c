package snapper

import (
	"math/rand"
	"testing"
)

func TestSnap(t *testing.T) {
	tests := []struct {
		name  string
		raw   float64
		valid []float64
		want  float64
	}{
		{"flat ATK reading", 46.7, []float64{30, 40, 50, 60}, 50},
		{"exact member", 8.1, []float64{6.3, 6.9, 7.5, 8.1, 8.7}, 8.1},
		{"tie keeps earlier entry", 45, []float64{30, 40, 50, 60}, 40},
		{"below range", 1, []float64{6.3, 6.9}, 6.3},
		{"above range", 99, []float64{6.3, 6.9}, 6.9},
		{"single entry", 12, []float64{7}, 7},
		{"unsorted table", 9.0, []float64{10.5, 6.3, 8.7}, 8.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Snap(tt.raw, tt.valid); got != tt.want {
				t.Errorf("Snap(%v): got %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSnap_AlwaysReturnsMember(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(10)
		table := make([]float64, n)
		for j := range table {
			table[j] = rng.Float64() * 100
		}
		raw := rng.Float64()*140 - 20

		got := Snap(raw, table)
		member := false
		for _, v := range table {
			if v == got {
				member = true
				break
			}
		}
		if !member {
			t.Fatalf("Snap(%v, %v) = %v is not in the table", raw, table, got)
		}
		k := rng.Intn(n)
		if exact := Snap(table[k], table); exact != table[k] {
			t.Fatalf("exact entry %v snapped to %v", table[k], exact)
		}
	}
}

func TestSnap_EmptyTablePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty table")
		}
	}()
	Snap(1, nil)
}

func TestTrySnap(t *testing.T) {
	if _, ok := TrySnap(3, nil); ok {
		t.Error("TrySnap should report false for empty table")
	}
	if v, ok := TrySnap(3, []float64{1, 4}); !ok || v != 4 {
		t.Errorf("TrySnap: got (%v, %v)", v, ok)
	}
}

func TestSnapInt(t *testing.T) {
	tests := []struct {
		raw  int
		want int
	}{
		{1, 1},
		{33, 40},
		{30, 20},
		{85, 80},
		{120, 90},
	}
	for _, tt := range tests {
		if got := SnapInt(tt.raw, CharacterLevels); got != tt.want {
			t.Errorf("SnapInt(%d): got %d, want %d", tt.raw, got, tt.want)
		}
	}
}

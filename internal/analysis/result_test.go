package analysis

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidLevel(t *testing.T) {
	tests := []struct {
		in   int
		want bool
	}{
		{0, false},
		{1, true},
		{50, true},
		{90, true},
		{91, false},
		{-4, false},
	}
	for _, tt := range tests {
		got := ValidLevel(tt.in)
		if (got != nil) != tt.want {
			t.Errorf("ValidLevel(%d): got %v, want valid=%v", tt.in, got, tt.want)
		}
		if got != nil && *got != tt.in {
			t.Errorf("ValidLevel(%d) changed value to %d", tt.in, *got)
		}
	}
}

func TestValidRank(t *testing.T) {
	for _, r := range []int{1, 3, 5} {
		if ValidRank(r) == nil {
			t.Errorf("rank %d should be valid", r)
		}
	}
	for _, r := range []int{0, 6, 10} {
		if ValidRank(r) != nil {
			t.Errorf("rank %d should be invalid", r)
		}
	}
}

func TestResultJSON(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		want    []string
		notWant []string
	}{
		{
			name:    "unknown carries only the tag",
			result:  Unknown(),
			want:    []string{`"type":"unknown"`},
			notWant: []string{"character", "weapon", "echo\":"},
		},
		{
			name:   "echo without substats emits an empty list",
			result: NewEcho(EchoResult{Name: "Mourning Aix"}),
			want:   []string{`"type":"echo"`, `"subStats":[]`, `"name":"Mourning Aix"`},
		},
		{
			name:    "absent level is omitted",
			result:  NewCharacter(CharacterResult{Name: "Jiyan"}),
			want:    []string{`"name":"Jiyan"`},
			notWant: []string{"level"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatal(err)
			}
			s := string(data)
			for _, w := range tt.want {
				if !strings.Contains(s, w) {
					t.Errorf("missing %s in %s", w, s)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(s, w) {
					t.Errorf("unexpected %s in %s", w, s)
				}
			}
		})
	}
}

func TestRegionHelpers(t *testing.T) {
	results := []RawRegionResult{
		{Region: "character", Text: "Jiyan"},
		{Region: "weapon", Err: errors.New("timeout")},
		{Region: "uid", Err: errors.New("no engine")},
	}

	texts := RegionTexts(results)
	if texts["character"] != "Jiyan" || texts["weapon"] != "" {
		t.Errorf("texts: got %v", texts)
	}
	if got := FailedRegions(results); !reflect.DeepEqual(got, []string{"weapon", "uid"}) {
		t.Errorf("failed: got %v", got)
	}
	if got := FailedRegions(results[:1]); got != nil {
		t.Errorf("no failures: got %v", got)
	}
}

package selection

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeRestyle(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{
			name:    "single hide",
			payload: `[{"visible": ["legendonly"]}, [1]]`,
			want:    LegendToggle{TraceIndex: 1, Hidden: true},
		},
		{
			name:    "single show",
			payload: `[{"visible": [true]}, [2]]`,
			want:    LegendToggle{TraceIndex: 2, Hidden: false},
		},
		{
			name:    "bare value",
			payload: `[{"visible": "legendonly"}, [0]]`,
			want:    LegendToggle{TraceIndex: 0, Hidden: true},
		},
		{
			name:    "batch",
			payload: `[{"visible": [true, "legendonly", "legendonly"]}, [0, 1, 2]]`,
			want:    LegendSnapshot{Hidden: []bool{false, true, true}},
		},
		{
			name:    "batch without indices",
			payload: `[{"visible": ["legendonly", true]}]`,
			want:    LegendSnapshot{Hidden: []bool{true, false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRestyle([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeRestyle() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeRestyle() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeRestyle_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"empty list", `[]`},
		{"no visible key", `[{"opacity": [0.5]}, [0]]`},
		{"single without index", `[{"visible": ["legendonly"]}]`},
		{"negative index", `[{"visible": [true]}, [-1]]`},
		{"bad indices", `[{"visible": [true]}, "x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRestyle([]byte(tt.payload))
			if !errors.Is(err, ErrInvalidRestyle) {
				t.Errorf("DecodeRestyle() error = %v, want ErrInvalidRestyle", err)
			}
		})
	}
}

func TestEventName(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Clear{}, "clear"},
		{Checklist{}, "checklist"},
		{LegendToggle{}, "legend_toggle"},
		{LegendSnapshot{}, "legend_snapshot"},
	}
	for _, tt := range tests {
		if got := EventName(tt.ev); got != tt.want {
			t.Errorf("EventName(%T) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

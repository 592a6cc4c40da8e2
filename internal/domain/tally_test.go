package domain

import (
	"reflect"
	"sort"
	"testing"
)

func TestTally(t *testing.T) {
	players := []Player{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}, {ID: "E"}}

	tests := []struct {
		name           string
		votes          []Vote
		liarID         string
		wantMostVoted  string
		wantLiarCaught bool
		wantWinners    []string
	}{
		{
			name: "clear majority catches liar",
			votes: []Vote{
				{Voter: "A", Target: "C"},
				{Voter: "B", Target: "C"},
				{Voter: "D", Target: "C"},
				{Voter: "C", Target: "A"},
			},
			liarID:         "C",
			wantMostVoted:  "C",
			wantLiarCaught: true,
			wantWinners:    []string{"A", "B", "D", "E"},
		},
		{
			name: "liar escapes",
			votes: []Vote{
				{Voter: "A", Target: "B"},
				{Voter: "B", Target: "A"},
				{Voter: "C", Target: "B"},
			},
			liarID:         "C",
			wantMostVoted:  "B",
			wantLiarCaught: false,
			wantWinners:    []string{"C"},
		},
		{
			// {A:2, B:2, C:1} with A's second vote arriving before B's
			// second: A reached the max first and wins the tie.
			name: "tie broken by first to reach max",
			votes: []Vote{
				{Voter: "p1", Target: "A"},
				{Voter: "p2", Target: "B"},
				{Voter: "p3", Target: "A"},
				{Voter: "p4", Target: "B"},
				{Voter: "p5", Target: "C"},
			},
			liarID:         "B",
			wantMostVoted:  "A",
			wantLiarCaught: false,
			wantWinners:    []string{"B"},
		},
		{
			name:           "no votes",
			votes:          nil,
			liarID:         "A",
			wantMostVoted:  "",
			wantLiarCaught: false,
			wantWinners:    []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Tally(tt.votes, players, tt.liarID)

			if result.MostVoted != tt.wantMostVoted {
				t.Errorf("expected most voted %q, got %q", tt.wantMostVoted, result.MostVoted)
			}
			if result.LiarCaught != tt.wantLiarCaught {
				t.Errorf("expected liarCaught=%v, got %v", tt.wantLiarCaught, result.LiarCaught)
			}

			got := append([]string(nil), result.Winners...)
			want := append([]string(nil), tt.wantWinners...)
			sort.Strings(got)
			sort.Strings(want)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected winners %v, got %v", want, got)
			}
		})
	}
}

func TestTallyDeterministic(t *testing.T) {
	players := []Player{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	votes := []Vote{
		{Voter: "p1", Target: "A"},
		{Voter: "p2", Target: "B"},
		{Voter: "p3", Target: "B"},
		{Voter: "p4", Target: "A"},
	}

	first := Tally(votes, players, "B")
	for i := 0; i < 100; i++ {
		if got := Tally(votes, players, "B"); got.MostVoted != first.MostVoted {
			t.Fatalf("tally not deterministic: %q vs %q", got.MostVoted, first.MostVoted)
		}
	}
	// B reached 2 votes before A did.
	if first.MostVoted != "B" {
		t.Errorf("expected B (first to max), got %q", first.MostVoted)
	}
}

package duel

import "testing"

func TestWinner(t *testing.T) {
	cases := []struct {
		name string
		rows map[string]Progress
		want string
	}{
		{"higher score", map[string]Progress{"a": {Score: 5, Strikes: 2}, "b": {Score: 4}}, "a"},
		{"fewer strikes breaks tie", map[string]Progress{"a": {Score: 4, Strikes: 2}, "b": {Score: 4, Strikes: 1}}, "b"},
		{"full tie", map[string]Progress{"a": {Score: 3, Strikes: 1}, "b": {Score: 3, Strikes: 1}}, ""},
		{"single row", map[string]Progress{"a": {Score: 0}}, "a"},
		{"empty", nil, ""},
	}
	for _, tc := range cases {
		// map order varies; repeat to shake out order dependence
		for i := 0; i < 20; i++ {
			if got := Winner(tc.rows); got != tc.want {
				t.Fatalf("%s: Winner = %q, want %q", tc.name, got, tc.want)
			}
		}
	}
}

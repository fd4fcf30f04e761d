package utils

import "testing"

func TestIntInRange(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"missing uses default", "", 5},
		{"plain", "12", 12},
		{"upper bound", "50", 50},
		{"clamped high", "500", 50},
		{"clamped low", "0", 1},
		{"negative", "-3", 1},
		{"garbage uses default", "ten", 5},
		{"no trimming", " 7", 5},
		{"overflow uses default", "999999999999999999999999", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IntInRange(tc.in, 5, 1, 50); got != tc.want {
				t.Fatalf("IntInRange(%q) = %d; want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestIntInRange_DefaultIsClamped(t *testing.T) {
	if got := IntInRange("", 80, 1, 50); got != 50 {
		t.Fatalf("default above range: got %d", got)
	}
}

func TestFlag(t *testing.T) {
	for _, s := range []string{"1", "t", "true", "TRUE"} {
		if !Flag(s) {
			t.Fatalf("Flag(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "false", "yes", "on"} {
		if Flag(s) {
			t.Fatalf("Flag(%q) = true", s)
		}
	}
}

package interval

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"60", 60 * time.Second},
		{"1 minute", time.Minute},
		{"5 minutes", 5 * time.Minute},
		{"2 hours", 2 * time.Hour},
		{"1 day", 24 * time.Hour},
		{"30 seconds", 30 * time.Second},
		{"  45  ", 45 * time.Second},
		{"3 s", 3 * time.Second},
		{"3 sec", 3 * time.Second},
		{"2 min", 2 * time.Minute},
		{"2 hr", 2 * time.Hour},
		{"1 d", 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseEquivalence(t *testing.T) {
	a, err := Parse("1 minute")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("60")
	if err != nil {
		t.Fatal(err)
	}
	if a != b || a != 60*time.Second {
		t.Errorf("parse_interval(\"1 minute\") = parse_interval(\"60\") = 60s invariant broken: %v vs %v", a, b)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{"", "five minutes", "5 fortnights", "5 5 5", "-5 minutes", "5.5 minutes"}
	for _, in := range bad {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got none", in)
		}
	}
}

package dedupe

import "testing"

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "Jazz Night", want: "jazz night"},
		{name: "strips live prefix", input: "LIVE: Jazz Night!", want: "jazz night"},
		{name: "strips tonight prefix", input: "Tonight: Open Mic", want: "open mic"},
		{name: "strips punctuation", input: "Jazz Night!!! (feat. Trio)", want: "jazz night feat trio"},
		{name: "collapses whitespace", input: "  Jazz   Night  ", want: "jazz night"},
		{name: "only first prefix stripped", input: "Live: Show: Jazz", want: "show jazz"},
		{name: "unicode letters kept", input: "Fête de la Musique", want: "fête de la musique"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeTitle(tc.input); got != tc.want {
				t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeVenueName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "strips leading article", input: "The Blue Note", want: "blue note"},
		{name: "keeps inner article", input: "Joe and the Fish", want: "joe and the fish"},
		{name: "strips punctuation", input: "Mole's!", want: "mole s"},
		{name: "article only name survives", input: "The", want: "the"},
		{name: "stacked articles", input: "The A Club", want: "club"},
		{name: "lowercases and collapses", input: "  BLUE   Note ", want: "blue note"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeVenueName(tc.input); got != tc.want {
				t.Fatalf("NormalizeVenueName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestUniqueKey(t *testing.T) {
	got := UniqueKey("LIVE: Jazz Night!", "2026-03-14", 7)
	want := "jazz night|2026-03-14|7"
	if got != want {
		t.Fatalf("UniqueKey = %q, want %q", got, want)
	}

	// Display variants of the same announcement collide.
	if UniqueKey("Jazz Night", "2026-03-14", 7) != got {
		t.Fatal("expected prefixed and plain titles to share a key")
	}

	// A different venue separates otherwise identical events.
	if UniqueKey("Jazz Night", "2026-03-14", 8) == got {
		t.Fatal("expected different venues to produce different keys")
	}
}

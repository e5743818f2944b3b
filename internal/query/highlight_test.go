package query

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/star-labs/logscanner/internal/models"
)

func TestBuildHighlights(t *testing.T) {
	entries := []*models.LogEntry{
		{ID: "e1", Message: "Connection TIMEOUT while calling service", RawLine: "raw timeout line"},
		{ID: "e2", Message: "all good here"},
	}

	highlights := buildHighlights(entries, "timeout", []string{"message", "rawLine"})

	if highlights == nil {
		t.Fatal("expected highlights")
	}
	if _, ok := highlights["e2"]; ok {
		t.Error("entry without a match should have no highlights")
	}

	perField := highlights["e1"]
	if perField == nil {
		t.Fatal("expected highlights for e1")
	}
	msg := perField["message"]
	if len(msg) != 1 {
		t.Fatalf("message fragments = %d, want 1", len(msg))
	}
	want := `Connection <em class="highlight">TIMEOUT</em> while calling service`
	if msg[0] != want {
		t.Errorf("fragment = %q, want %q", msg[0], want)
	}
	if len(perField["rawLine"]) != 1 {
		t.Errorf("rawLine fragments = %v, want one", perField["rawLine"])
	}
}

func TestBuildHighlightsNoMatch(t *testing.T) {
	entries := []*models.LogEntry{{ID: "e1", Message: "nothing relevant"}}
	if h := buildHighlights(entries, "timeout", []string{"message"}); h != nil {
		t.Errorf("highlights = %v, want nil", h)
	}
	if h := buildHighlights(entries, "   ", []string{"message"}); h != nil {
		t.Errorf("highlights for blank search = %v, want nil", h)
	}
}

func TestHighlightValueMaxFragments(t *testing.T) {
	value := strings.Repeat("error happened again and then ", 10)
	fragments := highlightValue(value, []string{"error"})
	if len(fragments) != maxFragments {
		t.Errorf("fragments = %d, want %d", len(fragments), maxFragments)
	}
	for _, f := range fragments {
		if !strings.Contains(f, highlightPre+"error"+highlightPost) {
			t.Errorf("fragment missing marker: %q", f)
		}
	}
}

func TestFragmentAroundLongValue(t *testing.T) {
	value := strings.Repeat("a", 400) + "needle" + strings.Repeat("b", 400)
	fragment := fragmentAround(value, 400, 400+len("needle"))

	if !strings.Contains(fragment, highlightPre+"needle"+highlightPost) {
		t.Fatalf("fragment missing wrapped match: %q", fragment)
	}
	plain := strings.ReplaceAll(strings.ReplaceAll(fragment, highlightPre, ""), highlightPost, "")
	if len(plain) > fragmentSize {
		t.Errorf("fragment length = %d, want <= %d", len(plain), fragmentSize)
	}
}

func TestHighlightValueCaseInsensitive(t *testing.T) {
	fragments := highlightValue("Database CONNECTION refused", []string{"connection"})
	if len(fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(fragments))
	}
	if !strings.Contains(fragments[0], highlightPre+"CONNECTION"+highlightPost) {
		t.Errorf("fragment should preserve original case: %q", fragments[0])
	}
}

// Case folding can change a rune's encoded length ('Ⱥ' is two bytes,
// its lowercase 'ⱥ' is three), so match offsets must come from the
// value itself, never from a lowercased copy.
func TestHighlightValueFoldChangesByteLength(t *testing.T) {
	value := strings.Repeat("Ⱥ", 10) + "error"
	fragments := highlightValue(value, []string{"error"})
	if len(fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(fragments))
	}
	if !strings.Contains(fragments[0], highlightPre+"error"+highlightPost) {
		t.Errorf("fragment missing wrapped match: %q", fragments[0])
	}
	if !utf8.ValidString(fragments[0]) {
		t.Errorf("fragment is not valid UTF-8: %q", fragments[0])
	}
}

func TestHighlightValueMultibyteContext(t *testing.T) {
	value := strings.Repeat("İ", 5) + "error" + strings.Repeat("İ", 5)
	fragments := highlightValue(value, []string{"error"})
	if len(fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(fragments))
	}
	want := strings.Repeat("İ", 5) + highlightPre + "error" + highlightPost + strings.Repeat("İ", 5)
	if fragments[0] != want {
		t.Errorf("fragment = %q, want %q", fragments[0], want)
	}
	if !utf8.ValidString(fragments[0]) {
		t.Errorf("fragment is not valid UTF-8: %q", fragments[0])
	}
}

func TestIndexFoldMultibyteMatch(t *testing.T) {
	value := "saw Ⱥ then ⱥ again"
	at, end := indexFold(value, "ⱥ", 0)
	if at < 0 {
		t.Fatal("expected a match")
	}
	if got := value[at:end]; got != "Ⱥ" {
		t.Errorf("match = %q, want %q", got, "Ⱥ")
	}
	at2, end2 := indexFold(value, "ⱥ", end)
	if at2 < 0 {
		t.Fatal("expected a second match")
	}
	if got := value[at2:end2]; got != "ⱥ" {
		t.Errorf("second match = %q at %d", got, at2)
	}
}

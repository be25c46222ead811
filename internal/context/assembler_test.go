package context

import "testing"

func TestAssembleRejectsUnknownKind(t *testing.T) {
	a := New()
	_, err := a.Assemble(Request{Kinds: []Kind{"bogus"}})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if got := err.Error(); !contains(got, "memories") {
		t.Fatalf("error message %q does not enumerate valid kinds", got)
	}
}

func TestAssembleOrdersSectionsByFixedPriority(t *testing.T) {
	a := New()
	result, err := a.Assemble(Request{
		Kinds: []Kind{KindCode, KindMemories},
		Items: map[Kind][]Item{
			KindCode:     {{Source: "f.go", Content: "func main() {}"}},
			KindMemories: {{Source: "m1", Content: "user prefers terse output"}},
		},
		TokenBudget: 1000,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if indexOf(result.Markdown, "## Memories") > indexOf(result.Markdown, "## Code") {
		t.Fatalf("Memories section should precede Code section, got:\n%s", result.Markdown)
	}
	if result.ItemCount != 2 {
		t.Fatalf("ItemCount=%d, want 2", result.ItemCount)
	}
}

func TestAssembleTruncatesAtBudget(t *testing.T) {
	a := New()
	var items []Item
	for i := 0; i < 500; i++ {
		items = append(items, Item{Source: idFor(i), Content: "a fairly long line of recorded context text here"})
	}
	result, err := a.Assemble(Request{
		Kinds:       []Kind{KindMemories},
		Items:       map[Kind][]Item{KindMemories: items},
		TokenBudget: 50,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected Truncated=true when items exceed the token budget")
	}
	if result.TokenCount > 50 {
		t.Fatalf("TokenCount=%d exceeds budget 50", result.TokenCount)
	}
}

func TestAssembleDedupsByFullContent(t *testing.T) {
	a := New()
	result, err := a.Assemble(Request{
		Kinds: []Kind{KindMemories},
		Items: map[Kind][]Item{
			KindMemories: {
				{Source: "m1", Content: "same note"},
				{Source: "m1", Content: "same note"},
			},
		},
		TokenBudget: 1000,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("ItemCount=%d, want 1 (duplicate should be dropped)", result.ItemCount)
	}
}

func TestEstimateTokensUsesHigherHeuristic(t *testing.T) {
	if got := EstimateTokens("abcd"); got != 1 {
		t.Fatalf("EstimateTokens(4 chars)=%d, want 1", got)
	}
	long := "supercalifragilisticexpialidocious"
	if got := EstimateTokens(long); got < len(long)/4 {
		t.Fatalf("EstimateTokens should not undercount a single long word: got %d", got)
	}
}

func contains(haystack, needle string) bool {
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func idFor(i int) string {
	return "m_" + string(rune('a'+i%26)) + string(rune('0'+(i/26)%10))
}

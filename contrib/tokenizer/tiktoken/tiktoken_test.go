package tiktoken

import "testing"

func TestCount(t *testing.T) {
	tok, err := New(DefaultEncoding)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	if got := tok.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d", got)
	}
	ids := tok.Encode("per diem in Bangalore")
	if got := tok.Count("per diem in Bangalore"); got != len(ids) {
		t.Errorf("Count = %d, want %d", got, len(ids))
	}
	if got := tok.Decode(ids); got != "per diem in Bangalore" {
		t.Errorf("Decode = %q", got)
	}
}

func TestWordCounter(t *testing.T) {
	if got := (WordCounter{}).Count("  visa  rules for\tIndia "); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
}

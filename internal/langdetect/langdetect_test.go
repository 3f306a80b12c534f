package langdetect

import "testing"

func TestDetectEnglish(t *testing.T) {
	got := Detect("I have been having a fever and a sore throat for the last three days")
	if got != "English" {
		t.Fatalf("expected English, got %q", got)
	}
}

func TestDetectHindi(t *testing.T) {
	got := Detect("मुझे तीन दिनों से बुखार और गले में खराश है")
	if got != "Hindi" {
		t.Fatalf("expected Hindi, got %q", got)
	}
}

func TestDetectEmptyAndWhitespace(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if got := Detect(text); got != "" {
			t.Fatalf("text %q: expected empty result, got %q", text, got)
		}
	}
}

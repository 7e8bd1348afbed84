package provider

import "testing"

func TestEstimateTokensRoundsUpToNearestFourChars(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"a":     1,
		"abcd":  1,
		"abcde": 2,
		"12345678": 2,
	}
	for input, want := range cases {
		if got := EstimateTokens(input); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestValidateRequestRejectsMaxTokensOverTierLimit(t *testing.T) {
	err := ValidateRequest(100, 2000, 1024, 8192, 4096, 32768)
	if err == nil {
		t.Fatal("expected an error when max_tokens exceeds the tier limit")
	}
}

func TestValidateRequestRejectsMaxTokensOverModelLimit(t *testing.T) {
	err := ValidateRequest(100, 3000, 4096, 8192, 2048, 32768)
	if err == nil {
		t.Fatal("expected an error when max_tokens exceeds the model's output limit")
	}
}

func TestValidateRequestRejectsContextWindowOverflow(t *testing.T) {
	err := ValidateRequest(8000, 1000, 4096, 8192, 4096, 32768)
	if err == nil {
		t.Fatal("expected an error when estimated input plus max_tokens exceeds the context window")
	}
}

func TestValidateRequestUsesNarrowerOfTierAndModelContextWindow(t *testing.T) {
	// Tier window is wider than the model's; the model's narrower window
	// should be the one enforced.
	err := ValidateRequest(3000, 1000, 4096, 16384, 4096, 3500)
	if err == nil {
		t.Fatal("expected the narrower model context window to be enforced")
	}
}

func TestValidateRequestPassesWithinAllLimits(t *testing.T) {
	if err := ValidateRequest(100, 500, 4096, 8192, 4096, 32768); err != nil {
		t.Fatalf("expected a request within every limit to pass, got %v", err)
	}
}

package fastpath

import "testing"

func TestDetectWeather(t *testing.T) {
	tests := []struct {
		text     string
		wantHit  bool
		wantLoc  string
	}{
		{"what's the weather", true, ""},
		{"what's the weather in Pittsburgh PA", true, "Pittsburgh PA"},
		{"tell me a joke", false, ""},
	}
	for _, tt := range tests {
		got := DetectWeather(tt.text)
		if got.Matched != tt.wantHit {
			t.Fatalf("text=%q: matched=%v, want %v", tt.text, got.Matched, tt.wantHit)
		}
		if got.Location != tt.wantLoc {
			t.Fatalf("text=%q: location=%q, want %q", tt.text, got.Location, tt.wantLoc)
		}
	}
}

func TestDetectCrypto(t *testing.T) {
	if !DetectCrypto("what's my bitcoin portfolio look like") {
		t.Fatalf("expected crypto intent to match")
	}
	if DetectCrypto("bitcoin is interesting technology") {
		t.Fatalf("expected bare coin mention without portfolio term to not match")
	}
}

func TestExtractConfirmedLocation(t *testing.T) {
	tests := []struct {
		text    string
		wantLoc string
	}{
		{"yes, Pittsburgh PA", "Pittsburgh PA"},
		{"yeah Austin", "Austin"},
		{"sure, Denver CO.", "Denver CO"},
		{"yes", ""},
		{"okay", ""},
	}
	for _, tt := range tests {
		if got := ExtractConfirmedLocation(tt.text); got != tt.wantLoc {
			t.Fatalf("text=%q: location=%q, want %q", tt.text, got, tt.wantLoc)
		}
	}
}

func TestIsExplicitCryptoReportRequest(t *testing.T) {
	if !IsExplicitCryptoReportRequest("give me my crypto report") {
		t.Fatalf("expected explicit report request to match")
	}
	if IsExplicitCryptoReportRequest("what's my bitcoin portfolio") {
		t.Fatalf("expected non-explicit phrasing to not match")
	}
}

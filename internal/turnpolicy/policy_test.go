package turnpolicy

import "testing"

func TestFastLaneSimpleChat(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hey", true},
		{"hi nova", true},
		{"thanks", true},
		{"what's the weather in Austin", false},
		{"can you clone this repo and run the tests for me please", false},
		{"hello there friend, how has your whole week been going", false},
	}
	for _, tt := range tests {
		p := Derive(tt.text)
		if p.FastLaneSimpleChat != tt.want {
			t.Errorf("Derive(%q).FastLaneSimpleChat = %v, want %v", tt.text, p.FastLaneSimpleChat, tt.want)
		}
	}
}

func TestToolLoopCandidate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"check out https://example.com/report and summarize it", true},
		{"can you search the web for the latest release notes", true},
		{"please clone the repo and run the build script", true},
		{"hey how are you doing today", false},
		{"search the web for this but don't browse anything external", false},
	}
	for _, tt := range tests {
		p := Derive(tt.text)
		if p.ToolLoopCandidate != tt.want {
			t.Errorf("Derive(%q).ToolLoopCandidate = %v, want %v", tt.text, p.ToolLoopCandidate, tt.want)
		}
	}
}

func TestMemoryRecallCandidate(t *testing.T) {
	p := Derive("do you remember what I told you about my preferences")
	if !p.MemoryRecallCandidate {
		t.Fatalf("expected memory recall candidate to match")
	}
	p = Derive("what's two plus two")
	if p.MemoryRecallCandidate {
		t.Fatalf("expected no memory recall candidate")
	}
}

func TestIntersectGatesOnRuntimeCapabilities(t *testing.T) {
	p := Derive("check out https://example.com and summarize it")
	if !p.ToolLoopCandidate {
		t.Fatalf("precondition: expected tool loop candidate")
	}

	off := Intersect(p, ToolRuntimeCapabilities{Available: false, HasWebFetch: true})
	if off.CanRunToolLoop {
		t.Fatalf("expected CanRunToolLoop false when runtime unavailable")
	}

	on := Intersect(p, ToolRuntimeCapabilities{Available: true, HasWebFetch: true})
	if !on.CanRunToolLoop {
		t.Fatalf("expected CanRunToolLoop true when runtime available and capable")
	}
	if !on.ShouldPreloadWebFetch {
		t.Fatalf("expected ShouldPreloadWebFetch true when URL present and capability available")
	}
	if on.ShouldPreloadWebSearch {
		t.Fatalf("expected ShouldPreloadWebSearch false without search capability")
	}
}

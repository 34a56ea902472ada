package brand_test

import (
	"testing"
	"time"

	"postforge/internal/brand"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		input  string
		expect brand.Platform
		ok     bool
	}{
		{"instagram", brand.PlatformInstagram, true},
		{" TikTok ", brand.PlatformTikTok, true},
		{"X", brand.PlatformX, true},
		{"myspace", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := brand.ParsePlatform(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParsePlatform(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.expect {
			t.Fatalf("ParsePlatform(%q) = %q, want %q", tc.input, got, tc.expect)
		}
	}
}

func TestProfileMergeExtendsWithoutDiscarding(t *testing.T) {
	profile := brand.Profile{
		Name:       "Trailhead Coffee",
		Services:   []string{"Espresso", "Cold Brew"},
		Handles:    []string{"@trailhead"},
		Colors:     []string{"#4B2E1E"},
		Confidence: 72,
	}
	profile.Merge(brand.Profile{
		Industry:   "Food & Beverage",
		Services:   []string{"cold brew", "Catering"},
		Handles:    []string{"@trailhead", "@trailheadroasts"},
		Colors:     []string{"#FFFFFF"},
		Confidence: 40,
	})

	if profile.Name != "Trailhead Coffee" {
		t.Fatalf("merge overwrote name: %q", profile.Name)
	}
	if profile.Industry != "Food & Beverage" {
		t.Fatalf("merge did not fill empty industry: %q", profile.Industry)
	}
	if len(profile.Services) != 3 {
		t.Fatalf("expected 3 services after merge, got %v", profile.Services)
	}
	if len(profile.Handles) != 2 {
		t.Fatalf("expected 2 handles after merge, got %v", profile.Handles)
	}
	if len(profile.Colors) != 1 || profile.Colors[0] != "#4B2E1E" {
		t.Fatalf("merge replaced existing palette: %v", profile.Colors)
	}
	if profile.Confidence != 72 {
		t.Fatalf("merge lowered confidence: %d", profile.Confidence)
	}
}

func TestIdeaProtected(t *testing.T) {
	scheduled := time.Now().Add(time.Hour)
	tests := []struct {
		name   string
		idea   brand.Idea
		expect bool
	}{
		{"pending", brand.Idea{Status: brand.IdeaPending}, false},
		{"liked", brand.Idea{Status: brand.IdeaLiked}, true},
		{"scheduled pending", brand.Idea{Status: brand.IdeaPending, ScheduledAt: &scheduled}, true},
		{"discarded", brand.Idea{Status: brand.IdeaDiscarded}, false},
	}
	for _, tc := range tests {
		if got := tc.idea.Protected(); got != tc.expect {
			t.Fatalf("%s: Protected() = %v, want %v", tc.name, got, tc.expect)
		}
	}
}

package services_test

import (
	"strings"
	"testing"

	"postforge/internal/services"
)

func TestDecodeModelJSONDirect(t *testing.T) {
	var parsed struct {
		Name string `json:"name"`
	}
	if err := services.DecodeModelJSON(`{"name":"acme"}`, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Name != "acme" {
		t.Fatalf("got %q", parsed.Name)
	}
}

func TestDecodeModelJSONStripsFences(t *testing.T) {
	payload := "```json\n{\"name\":\"acme\"}\n```"
	var parsed struct {
		Name string `json:"name"`
	}
	if err := services.DecodeModelJSON(payload, &parsed); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if parsed.Name != "acme" {
		t.Fatalf("got %q", parsed.Name)
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	payload := "Here is the profile you asked for: {\"name\":\"acme\"} hope that helps!"
	var parsed struct {
		Name string `json:"name"`
	}
	if err := services.DecodeModelJSON(payload, &parsed); err != nil {
		t.Fatalf("decode embedded: %v", err)
	}
	if parsed.Name != "acme" {
		t.Fatalf("got %q", parsed.Name)
	}
}

func TestDecodeModelJSONEmpty(t *testing.T) {
	var parsed map[string]any
	if err := services.DecodeModelJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSummarizeSnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	summary := services.SummarizeSnippet(long)
	if len(summary) > 170 {
		t.Fatalf("snippet too long: %d", len(summary))
	}
	if !strings.HasSuffix(summary, "...") {
		t.Fatalf("snippet missing ellipsis: %q", summary)
	}
}

package event

import (
	"strconv"
	"strings"
	"testing"
)

func TestDeriveIDIsDeterministic(t *testing.T) {
	first := DeriveID("booksmith", "https://booksmith.com/events/123")
	second := DeriveID("booksmith", "https://booksmith.com/events/123")

	if first != second {
		t.Errorf("Expected identical ids, got '%s' and '%s'", first, second)
	}

	other := DeriveID("booksmith", "https://booksmith.com/events/456")
	if other == first {
		t.Errorf("Expected different ids for different keys, both were '%s'", first)
	}
}

func TestDeriveIDKnownValues(t *testing.T) {
	// Values produced by the id scheme already in use for stored events.
	tests := []struct {
		sourceID string
		key      string
		want     string
	}{
		{"booksmith", "https://booksmith.com/events/123", "booksmith_mh6tyr"},
		{"booksmith", "https://booksmith.com/events/456", "booksmith_mh6ro0"},
		{"ticketmaster", "G5vYZ9XJ1aBcd", "ticketmaster_9mse9x"},
		{"emoji", "🎸 night", "emoji_t2le8o"},
		{"a", "", "a_2d5"},
	}

	for _, tt := range tests {
		if got := DeriveID(tt.sourceID, tt.key); got != tt.want {
			t.Errorf("Expected DeriveID(%q, %q) = '%s', got '%s'", tt.sourceID, tt.key, tt.want, got)
		}
	}
}

func TestDeriveIDPrefix(t *testing.T) {
	id := DeriveID("the-chapel", "evt-1")
	if !strings.HasPrefix(id, "the-chapel_") {
		t.Errorf("Expected id to start with 'the-chapel_', got '%s'", id)
	}
	if strings.ContainsAny(id[len("the-chapel_"):], "-_ ") {
		t.Errorf("Expected base-36 suffix, got '%s'", id)
	}
}

func TestDeriveIDNamespacesBySource(t *testing.T) {
	if DeriveID("a", "same-key") == DeriveID("b", "same-key") {
		t.Error("Expected ids from different sources to differ")
	}
}

func TestDeriveIDFewCollisions(t *testing.T) {
	seen := make(map[string]string, 5000)
	for i := 0; i < 5000; i++ {
		key := "https://venue.example.com/events/" + strconv.Itoa(i)
		id := DeriveID("venue", key)
		if prev, ok := seen[id]; ok {
			t.Fatalf("Unexpected collision between '%s' and '%s'", prev, key)
		}
		seen[id] = key
	}
}

func TestIdentityKey(t *testing.T) {
	withKey := RawRecord{NaturalKey: " tm-123 ", SourceURL: "https://example.com/e/1"}
	if got := IdentityKey(withKey); got != "tm-123" {
		t.Errorf("Expected natural key 'tm-123', got '%s'", got)
	}

	withoutKey := RawRecord{NaturalKey: "  ", SourceURL: " https://example.com/e/1 "}
	if got := IdentityKey(withoutKey); got != "https://example.com/e/1" {
		t.Errorf("Expected URL fallback, got '%s'", got)
	}
}

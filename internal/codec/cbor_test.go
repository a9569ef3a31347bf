package codec

import (
	"bytes"
	"testing"
)

type sampleCapture struct {
	BadgeID    string `json:"badge_id"`
	DeviceID   string `json:"device_id"`
	Attempt    int    `json:"attempt,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

func TestRoundtripWithJSONTags(t *testing.T) {
	in := sampleCapture{BadgeID: "04A2B3", DeviceID: "door-1", Attempt: 2, OccurredAt: "2026-03-02T09:00:00Z"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sampleCapture
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	m := map[string]any{"b": 1, "a": "x", "c": []int{1, 2}}

	first, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestUnmarshalRejectsUnknownField(t *testing.T) {
	data, err := Marshal(map[string]any{"badge_id": "04A2B3", "nope": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sampleCapture
	if err := Unmarshal(data, &out); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, id := range []string{"A1", "B2"} {
		if err := enc.Encode(sampleCapture{BadgeID: id}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for _, want := range []string{"A1", "B2"} {
		var got sampleCapture
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.BadgeID != want {
			t.Fatalf("got %q, want %q", got.BadgeID, want)
		}
	}
}

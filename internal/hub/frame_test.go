package hub

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeFrameKnownTypes(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"connected","message":"hi"}`))
	if err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if frame.Type != TypeConnected || frame.Message != "hi" {
		t.Errorf("unexpected connected frame: %+v", frame)
	}

	frame, err = DecodeFrame([]byte(`{"type":"conversation_context","context":"them: hey","conversation_ref":"chat42"}`))
	if err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if frame.Context != "them: hey" || frame.ConversationRef != "chat42" {
		t.Errorf("unexpected context frame: %+v", frame)
	}

	frame, err = DecodeFrame([]byte(`{"type":"suggestions","suggestions":["a","b"],"loading":true}`))
	if err != nil {
		t.Fatalf("decode suggestions: %v", err)
	}
	if len(frame.Suggestions) != 2 || !frame.Loading {
		t.Errorf("unexpected suggestions frame: %+v", frame)
	}

	frame, err = DecodeFrame([]byte(`{"type":"suggestion_selected","index":0,"text":"Sounds good!","inserted":false}`))
	if err != nil {
		t.Fatalf("decode selected: %v", err)
	}
	if frame.Index != 0 || frame.Text != "Sounds good!" || frame.Inserted {
		t.Errorf("unexpected selected frame: %+v", frame)
	}

	frame, err = DecodeFrame([]byte(`{"type":"status","status":"shutting_down"}`))
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if frame.Status != "shutting_down" {
		t.Errorf("unexpected status frame: %+v", frame)
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"telemetry","payload":"x"}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	var unknown *ErrUnknownType
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownType, got %T: %v", err, err)
	}
	if unknown.Type != "telemetry" {
		t.Errorf("expected type telemetry, got %q", unknown.Type)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	if _, err := DecodeFrame([]byte(`{"type":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for non-JSON input")
	}
}

func TestEncodeSelectedKeepsZeroValues(t *testing.T) {
	// Index 0 and inserted false are meaningful and must stay on the wire
	data := string(EncodeSelected(0, "ok", false))
	if !strings.Contains(data, `"index":0`) {
		t.Errorf("index 0 missing from %s", data)
	}
	if !strings.Contains(data, `"inserted":false`) {
		t.Errorf("inserted false missing from %s", data)
	}
}

func TestEncodeSuggestionsNeverNull(t *testing.T) {
	data := string(EncodeSuggestions(nil, false))
	if !strings.Contains(data, `"suggestions":[]`) {
		t.Errorf("nil suggestions should encode as empty array, got %s", data)
	}
	if strings.Contains(data, "loading") {
		t.Errorf("loading=false should be omitted, got %s", data)
	}

	data = string(EncodeSuggestions(nil, true))
	if !strings.Contains(data, `"loading":true`) {
		t.Errorf("loading=true missing from %s", data)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := DecodeFrame(EncodeContext("me: on my way", "chat7"))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if frame.Type != TypeConversationContext || frame.ConversationRef != "chat7" {
		t.Errorf("unexpected frame: %+v", frame)
	}

	frame, err = DecodeFrame(EncodeStatus("overlay_disabled"))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if frame.Status != "overlay_disabled" {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

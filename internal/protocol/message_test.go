package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"foreman/internal/protocol"
)

func TestEncodeLineFlattensParams(t *testing.T) {
	cmd := protocol.NewCommand("probe_media", map[string]any{"path": "/data/movie.mkv"})
	line, err := protocol.EncodeLine(cmd)
	if err != nil {
		t.Fatalf("EncodeLine returned error: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Fatal("encoded line must end with newline")
	}

	var decoded map[string]any
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("round-trip decode: %v", err)
	}
	if decoded["action"] != "probe_media" {
		t.Fatalf("unexpected action %v", decoded["action"])
	}
	if decoded["path"] != "/data/movie.mkv" {
		t.Fatalf("unexpected path %v", decoded["path"])
	}
}

func TestEncodeLineRejectsEmptyAction(t *testing.T) {
	if _, err := protocol.EncodeLine(protocol.Command{}); err == nil {
		t.Fatal("expected error for missing action")
	}
}

func TestEncodeLineParamsCannotOverrideAction(t *testing.T) {
	cmd := protocol.NewCommand("ping", map[string]any{"action": "shutdown"})
	line, err := protocol.EncodeLine(cmd)
	if err != nil {
		t.Fatalf("EncodeLine returned error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["action"] != "ping" {
		t.Fatalf("action overridden by params: %v", decoded["action"])
	}
}

func TestFinalDetection(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		final bool
	}{
		{"complete flag", `{"complete":true}`, true},
		{"status complete", `{"status":"complete"}`, true},
		{"status error", `{"status":"error","message":"boom"}`, true},
		{"results without progress", `{"results":[1,2,3]}`, true},
		{"results with progress marker", `{"results":[],"progress":0.5}`, false},
		{"pure progress", `{"provider":"A","progress":true}`, false},
		{"plain success ping", `{"status":"success"}`, false},
		{"empty object", `{}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := protocol.DecodeResponse([]byte(tc.line))
			if err != nil {
				t.Fatalf("DecodeResponse(%s): %v", tc.line, err)
			}
			if resp.Final() != tc.final {
				t.Fatalf("Final() = %v, want %v for %s", resp.Final(), tc.final, tc.line)
			}
		})
	}
}

func TestDecodeResponseRejectsMalformedLine(t *testing.T) {
	if _, err := protocol.DecodeResponse([]byte(`{"status":`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := protocol.DecodeResponse([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeResponseKeepsOpaqueFields(t *testing.T) {
	resp, err := protocol.DecodeResponse([]byte(`{"status":"success","subtitles":["a.srt"]}`))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	raw, ok := resp.Get("subtitles")
	if !ok {
		t.Fatal("expected subtitles field preserved")
	}
	var subs []string
	if err := json.Unmarshal(raw, &subs); err != nil || len(subs) != 1 {
		t.Fatalf("unexpected subtitles payload: %v %v", subs, err)
	}
}

func TestReadyHandshake(t *testing.T) {
	resp, err := protocol.DecodeResponse([]byte(`{"status":"ready","worker":"w1"}`))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !resp.Ready() {
		t.Fatal("expected ready response")
	}
	if resp.Final() {
		t.Fatal("ready handshake must not be final")
	}
}

func TestErrorResponseIsFinal(t *testing.T) {
	resp := protocol.ErrorResponse("no worker available")
	if !resp.Final() {
		t.Fatal("synthetic error response must be final")
	}
	if resp.Status != protocol.StatusError {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if resp.Message != "no worker available" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_Kinds(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
		want    Message
	}{
		{
			name:  "join without to",
			frame: `{"type":"join","session":"s1","from":"r1","credential":"k"}`,
			want:  Message{Kind: KindJoin, Session: "s1", From: "r1", Credential: "k"},
		},
		{
			name:  "join ignores to",
			frame: `{"type":"join","session":"s1","from":"r1","to":"m1","credential":"k"}`,
			want:  Message{Kind: KindJoin, Session: "s1", From: "r1", Credential: "k"},
		},
		{
			name:  "offer with object credential",
			frame: `{"type":"offer","session":"s1","from":"m1","to":"r1","payload":"X","credential":{"token":"t"}}`,
			want:  Message{Kind: KindOffer, Session: "s1", From: "m1", To: "r1", Payload: json.RawMessage(`"X"`), Credential: "t"},
		},
		{
			name:  "control with secret object",
			frame: `{"type":"control","session":"s1","from":"m1","to":"r1","payload":{"camera":"back"},"credential":{"secret":"k"}}`,
			want:  Message{Kind: KindControl, Session: "s1", From: "m1", To: "r1", Payload: json.RawMessage(`{"camera":"back"}`), Credential: "k"},
		},
		{
			name:    "not json",
			frame:   `{"type":`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing type",
			frame:   `{"session":"s1","from":"m1","credential":"k"}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "unknown type",
			frame:   `{"type":"bye","session":"s1","from":"m1","credential":"k"}`,
			wantErr: ErrUnknownMessageType,
		},
		{
			name:    "offer without to",
			frame:   `{"type":"offer","session":"s1","from":"m1","payload":"X","credential":"k"}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing session",
			frame:   `{"type":"ice","from":"m1","to":"r1","credential":"k"}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing credential",
			frame:   `{"type":"answer","session":"s1","from":"r1","to":"m1"}`,
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "numeric credential",
			frame:   `{"type":"answer","session":"s1","from":"r1","to":"m1","credential":5}`,
			wantErr: ErrMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Kind != tt.want.Kind || got.Session != tt.want.Session || got.From != tt.want.From ||
				got.To != tt.want.To || got.Credential != tt.want.Credential || string(got.Payload) != string(tt.want.Payload) {
				t.Fatalf("got=%+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncode_OmitsCredential(t *testing.T) {
	m, err := Decode([]byte(`{"type":"offer","session":"s1","from":"m1","to":"r1","payload":{"sdp":"v=0"},"credential":"secret"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := Encode(m.Outbound())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["credential"]; ok {
		t.Fatalf("credential leaked: %s", b)
	}
	if out["type"] != "offer" || out["from"] != "m1" || out["to"] != "r1" {
		t.Fatalf("unexpected envelope: %s", b)
	}
}

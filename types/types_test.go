package types

import (
	"encoding/json"
	"testing"
)

func TestPubkey_Base58(t *testing.T) {
	if got := SystemProgramID.String(); got != "11111111111111111111111111111111" {
		t.Fatalf("system program id: got %s", got)
	}
	if !SystemProgramID.IsZero() {
		t.Fatal("system program id should be the zero key")
	}

	pk, err := PubkeyFromBase58(ClockSysvarID.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pk != ClockSysvarID {
		t.Fatal("round trip through base58 changed the key")
	}
}

func TestPubkey_RejectsWrongLength(t *testing.T) {
	if _, err := PubkeyFromBase58("1111"); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := PubkeyFromBytes(make([]byte, 31)); err == nil {
		t.Fatal("expected error for 31-byte key")
	}
}

func TestPubkey_JSONText(t *testing.T) {
	in := struct {
		Key Pubkey `json:"key"`
	}{Key: ClockSysvarID}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"key":"SysvarC1ock11111111111111111111111111111111"}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}

	var out struct {
		Key Pubkey `json:"key"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Key != ClockSysvarID {
		t.Fatal("json round trip changed the key")
	}
}

func TestChunk_End(t *testing.T) {
	c := Chunk{Offset: 2000, Bytes: make([]byte, 500)}
	if c.End() != 2500 {
		t.Fatalf("End: got %d", c.End())
	}
}

func TestMarker_String(t *testing.T) {
	if MarkerReturn.String() != "Return" || MarkerEvent.String() != "Event" {
		t.Fatal("marker names wrong")
	}
	if Marker(0x05).String() != "unknown" {
		t.Fatal("unexpected name for unknown marker")
	}
}

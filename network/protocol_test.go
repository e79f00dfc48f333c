package network

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodePacket(t *testing.T) {
	frame, err := EncodePacket(MsgTypeEvent, []byte(`{"kind":"level_up"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame[:4], []byte{0x01, 0x2d, 0x00, 0x13}) {
		t.Errorf("Unexpected header % x", frame[:4])
	}

	p, err := DecodePacket(frame)
	if err != nil {
		t.Fatal(err)
	}
	if p.MsgID != MsgTypeEvent || p.Length != 19 || string(p.Data) != `{"kind":"level_up"}` {
		t.Errorf("Decoded %+v", p)
	}
}

func TestDecodePacketShortFrames(t *testing.T) {
	if _, err := DecodePacket([]byte{0, 1, 0}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer for short header, got %v", err)
	}
	if _, err := DecodePacket([]byte{0, 1, 0, 5, 'a'}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer for truncated data, got %v", err)
	}
}

func TestEncodePacketRejectsOversizedData(t *testing.T) {
	if _, err := EncodePacket(MsgTypeEvent, make([]byte, 1<<16)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Expected ErrPacketTooLarge, got %v", err)
	}
}

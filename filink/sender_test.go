package filink

import (
	"strings"
	"testing"
)

func TestSenderHandshakeSuccess(t *testing.T) {
	mc := newMockChannel(t, []byte{ChReceiverReady})
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)
	if err := s.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	mc.requireFullyConsumed()
	want := []byte{ChSenderReady, ChGood}
	if string(mc.writes) != string(want) {
		t.Errorf("writes = %v, want %v", mc.writes, want)
	}
}

func TestSenderHandshakeRetriesOnUnexpectedByte(t *testing.T) {
	mc := newMockChannel(t, []byte{0x00, ChReceiverReady})
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)
	if err := s.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	want := []byte{ChSenderReady, ChSenderReady, ChGood}
	if string(mc.writes) != string(want) {
		t.Errorf("writes = %v, want %v", mc.writes, want)
	}
}

func TestSenderHandshakeTimeout(t *testing.T) {
	mc := newMockChannel(t, nil)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)
	err := s.Handshake()
	if !IsTimeout(err) {
		t.Fatalf("Handshake err = %v, want timeout", err)
	}
}

// scriptedFileTransfer builds the mock read script for a clean,
// no-retry transfer of one file whose logical name encodes to wire.
func scriptedFileTransfer(wire [11]byte, blockAcks []byte) []byte {
	reads := []byte{BS}
	reads = append(reads, wire[:]...) // echo matches what's sent
	reads = append(reads, TAB)
	for _, ack := range blockAcks {
		reads = append(reads, ChProceed, ack)
	}
	return reads
}

func TestSenderSendFileSingleBlock(t *testing.T) {
	wire := ToWire("hi.txt")
	reads := scriptedFileTransfer(wire, []byte{ChGood})
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	if err := s.SendFile("hi.txt", strings.NewReader("Hello")); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	mc.requireFullyConsumed()

	if mc.writes[len(mc.writes)-1] != ETX {
		t.Errorf("last write = 0x%02x, want ETX", mc.writes[len(mc.writes)-1])
	}
	if mc.writes[0] != EOT {
		t.Errorf("first write = 0x%02x, want EOT", mc.writes[0])
	}
}

func TestSenderSendFileTwoBlocks(t *testing.T) {
	wire := ToWire("a.txt")
	reads := scriptedFileTransfer(wire, []byte{ChGood, ChGood})
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	data := strings.Repeat("x", 200)
	if err := s.SendFile("a.txt", strings.NewReader(data)); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	mc.requireFullyConsumed()
}

func TestSenderChecksumRetryResendsSameBlock(t *testing.T) {
	wire := ToWire("a.txt")
	reads := scriptedFileTransfer(wire, []byte{ChBad, ChGood})
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	if err := s.SendFile("a.txt", strings.NewReader("Hi")); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	mc.requireFullyConsumed()

	// The block payload following each STX must be byte-identical
	// across the resend: locate both STX occurrences and compare the
	// 128 bytes that follow.
	var stxPositions []int
	for i, b := range mc.writes {
		if b == STX {
			stxPositions = append(stxPositions, i)
		}
	}
	if len(stxPositions) != 2 {
		t.Fatalf("expected 2 STX writes (original + resend), got %d", len(stxPositions))
	}
	first := mc.writes[stxPositions[0]+1 : stxPositions[0]+1+BlockSize]
	second := mc.writes[stxPositions[1]+1 : stxPositions[1]+1+BlockSize]
	if string(first) != string(second) {
		t.Errorf("resent block differs from original")
	}
}

func TestSenderFilenameMismatchRestartsFromS3(t *testing.T) {
	wire := ToWire("a.txt")
	// First attempt: mismatch on the very first filename byte.
	reads := []byte{BS, wire[0] + 1}
	// Restart: EOT resent, BS again, full correct echo, then rest of
	// the transfer for an empty file (EOF immediately).
	reads = append(reads, BS)
	reads = append(reads, wire[:]...)
	reads = append(reads, awaitTABBytes()...)
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	if err := s.SendFile("a.txt", strings.NewReader("")); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	mc.requireFullyConsumed()

	// Two EOTs: one for the initial S3, one for the restart.
	count := 0
	for _, b := range mc.writes {
		if b == EOT {
			count++
		}
	}
	if count != 2 {
		t.Errorf("EOT written %d times, want 2", count)
	}
}

// awaitTABBytes returns the scripted receiver response to S5 (await TAB).
func awaitTABBytes() []byte {
	return []byte{TAB}
}

func TestSenderS5UnexpectedByteRestartsFromS3(t *testing.T) {
	wire := ToWire("a.txt")
	// Filename echoes correctly, but S5's await-TAB gets garbage
	// instead: the sender must restart from S3, not abort.
	reads := []byte{BS}
	reads = append(reads, wire[:]...)
	reads = append(reads, 0x00)
	// Restart: EOT resent, full transfer proceeds for an empty file.
	reads = append(reads, BS)
	reads = append(reads, wire[:]...)
	reads = append(reads, awaitTABBytes()...)
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	if err := s.SendFile("a.txt", strings.NewReader("")); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	mc.requireFullyConsumed()

	count := 0
	for _, b := range mc.writes {
		if b == EOT {
			count++
		}
	}
	if count != 2 {
		t.Errorf("EOT written %d times, want 2", count)
	}
}

func TestSenderReceiverNotRespondingTimeout(t *testing.T) {
	wire := ToWire("a.txt")
	// BS arrives, filename echoes correctly, then the receiver goes
	// silent during S5's await-TAB.
	reads := []byte{BS}
	reads = append(reads, wire[:]...)
	mc := newMockChannel(t, reads)
	s := NewSender(mc, DefaultSenderConfig(), nil, nil, nil)

	err := s.SendFile("a.txt", strings.NewReader("x"))
	if !IsTimeout(err) {
		t.Fatalf("SendFile err = %v, want timeout", err)
	}
}

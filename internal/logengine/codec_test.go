package logengine

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/kvsd/kvs/internal/protocol"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	cmd := protocol.NewSet("k", "v")
	frame, err := encodeRecord(cmd)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}

	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := readRecordAt(f, 0)
	if err != nil {
		t.Fatalf("readRecordAt: %v", err)
	}
	if got != cmd {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cmd)
	}
}

func TestEncodeRecordRejectsGet(t *testing.T) {
	if _, err := encodeRecord(protocol.NewGet("k")); err == nil {
		t.Fatal("expected an error encoding a Get record")
	}
}

func TestReadRecordAtDetectsBadChecksum(t *testing.T) {
	frame, err := encodeRecord(protocol.NewSet("k", "v"))
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	frame[len(frame)-1] ^= 0xFF // corrupt the payload tail

	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	f.Write(frame)

	if _, err := readRecordAt(f, 0); err == nil {
		t.Fatal("expected a checksum error")
	}
}

func TestScanLogDetectsTornTrailingWrite(t *testing.T) {
	frame, err := encodeRecord(protocol.NewSet("k", "v"))
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	truncated := frame[:len(frame)-3]

	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	f.Write(truncated)

	err = scanLog(f, int64(len(truncated)), func(off int64, cmd protocol.Command) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected scanLog to detect a torn trailing record")
	}
}

func TestScanLogWalksMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	cmds := []protocol.Command{
		protocol.NewSet("a", "1"),
		protocol.NewSet("b", "2"),
		protocol.NewRm("a"),
	}
	for _, c := range cmds {
		frame, err := encodeRecord(c)
		if err != nil {
			t.Fatalf("encodeRecord: %v", err)
		}
		buf.Write(frame)
	}

	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	f.Write(buf.Bytes())

	var seen []protocol.Command
	err = scanLog(f, int64(buf.Len()), func(off int64, cmd protocol.Command) error {
		seen = append(seen, cmd)
		return nil
	})
	if err != nil {
		t.Fatalf("scanLog: %v", err)
	}
	if len(seen) != len(cmds) {
		t.Fatalf("scanLog visited %d records, want %d", len(seen), len(cmds))
	}
	for i, c := range cmds {
		if seen[i] != c {
			t.Fatalf("record %d = %+v, want %+v", i, seen[i], c)
		}
	}
}

func TestRecordSizeMatchesFrameLength(t *testing.T) {
	frame, err := encodeRecord(protocol.NewSet("k", "v"))
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	length := binary.BigEndian.Uint32(frame[:frameHeaderSize])
	want := int64(frameHeaderSize) + int64(length)
	if got := recordSize(frame); got != want {
		t.Fatalf("recordSize = %d, want %d", got, want)
	}
}

package mavftp

import (
	"bytes"
	"io"
	"testing"
)

func ackOpenReply() Frame {
	return Frame{Opcode: OpAck, ReqOpcode: OpOpenFileRO}
}

// TestGetHappyPath walks through spec.md §8 Scenario 1: a clean burst read
// with no loss, terminated by a short final burst chunk.
func TestGetHappyPath(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	var got []byte
	done := false
	err := e.Get("remote.bin", "-", func(r io.ReadSeeker) {
		done = true
		if r != nil {
			got, _ = io.ReadAll(r)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tr.last().Opcode != OpOpenFileRO {
		t.Fatalf("expected OpenFileRO sent, got %s", tr.last().Opcode)
	}

	e.handleOpenROReply(ackOpenReply())
	if tr.last().Opcode != OpBurstReadFile {
		t.Fatalf("expected BurstReadFile sent, got %s", tr.last().Opcode)
	}

	first := bytes.Repeat([]byte{'A'}, 80)
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 0, Size: 80, Payload: first})
	if done {
		t.Fatal("callback fired before EOF")
	}

	last := bytes.Repeat([]byte{'B'}, 20)
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 80, Size: 20, BurstComplete: true, Payload: last})

	if !done {
		t.Fatal("callback did not fire at EOF")
	}
	want := append(append([]byte{}, first...), last...)
	if !bytes.Equal(got, want) {
		t.Errorf("got %d bytes, want %d bytes matching content", len(got), len(want))
	}
	if !e.read.gaps.empty() {
		t.Errorf("expected no gaps, got %d", e.read.gaps.len())
	}
}

// TestGetGapRepair walks through spec.md §8 Scenario 2: a burst skips ahead
// (lost middle chunk), opening a gap that a later ReadFile repairs.
func TestGetGapRepair(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	var got []byte
	done := false
	if err := e.Get("remote.bin", "-", func(r io.ReadSeeker) {
		done = true
		got, _ = io.ReadAll(r)
	}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	e.handleOpenROReply(ackOpenReply())

	chunkA := bytes.Repeat([]byte{'A'}, 80)
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 0, Size: 80, Payload: chunkA})

	// Server skips the [80,160) chunk and jumps straight to [160,180),
	// reporting burst complete with a short final size.
	chunkC := bytes.Repeat([]byte{'C'}, 20)
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 160, Size: 20, BurstComplete: true, Payload: chunkC})

	if e.read.gaps.len() != 1 {
		t.Fatalf("expected one gap, got %d", e.read.gaps.len())
	}
	if !e.read.reachedEOF {
		t.Fatal("expected reachedEOF after short burst-complete chunk")
	}
	if done {
		t.Fatal("callback fired while a gap remains")
	}

	e.checkReadSend()
	if tr.last().Opcode != OpReadFile || tr.last().Offset != 80 || tr.last().Size != 80 {
		t.Fatalf("expected gap read for offset 80 len 80, got %s offset=%d size=%d", tr.last().Opcode, tr.last().Offset, tr.last().Size)
	}

	chunkB := bytes.Repeat([]byte{'B'}, 80)
	e.handleReadFileReply(Frame{Opcode: OpAck, ReqOpcode: OpReadFile, Offset: 80, Size: 80, Payload: chunkB})

	if !done {
		t.Fatal("callback did not fire after gap fill completed the transfer")
	}
	want := append(append(append([]byte{}, chunkA...), chunkB...), chunkC...)
	if !bytes.Equal(got, want) {
		t.Errorf("reconstructed %d bytes, want %d bytes matching content", len(got), len(want))
	}
}

// TestGetDuplicateBurst walks through spec.md §8 Scenario 3: a retransmitted
// burst chunk that does not correspond to any open gap is a duplicate.
func TestGetDuplicateBurst(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	if err := e.Get("remote.bin", "-", func(io.ReadSeeker) {}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	e.handleOpenROReply(ackOpenReply())

	chunk := bytes.Repeat([]byte{'A'}, 80)
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 0, Size: 80, Payload: chunk})

	// Re-delivery of the already-written [0,80) chunk: offset < current
	// position and no matching gap exists.
	e.handleBurstRead(Frame{Opcode: OpAck, ReqOpcode: OpBurstReadFile, Offset: 0, Size: 80, Payload: chunk})

	if e.read.duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", e.read.duplicates)
	}
}

// TestGetOpenNack verifies a Nack reply to OpenFileRO terminates the
// session and fires the callback with the null sentinel.
func TestGetOpenNack(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	var got io.ReadSeeker
	fired := false
	if err := e.Get("missing.bin", "-", func(r io.ReadSeeker) {
		fired = true
		got = r
	}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}

	e.handleOpenROReply(Frame{Opcode: OpNack, ReqOpcode: OpOpenFileRO, Payload: []byte{byte(ErrFileNotFound)}})

	if !fired {
		t.Fatal("callback did not fire on open failure")
	}
	if got != nil {
		t.Error("callback should receive a nil ReadSeeker on failure")
	}
	if e.LastError() == nil {
		t.Error("expected LastError to be set after open failure")
	}
}

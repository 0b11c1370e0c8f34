package mavftp

import (
	"bytes"
	"testing"
)

// TestPutPipelinedOutOfOrderAcks walks through spec.md §8 Scenario 4: a
// 250-byte upload with block_size=80 (four blocks, the last partial) and
// write_qsize=5, acked out of order.
func TestPutPipelinedOutOfOrderAcks(t *testing.T) {
	tr := newFakeTransport()
	cfg := DefaultConfig()
	cfg.WriteSize = 80
	cfg.WriteQSize = 5
	e := NewEngine(tr, 1, 1, cfg, testLogger(), nil)

	data := bytes.Repeat([]byte{'x'}, 250)
	var gotLen int64 = -2
	fired := false
	err := e.Put("local.bin", "remote.bin", bytes.NewReader(data), func(n int64) {
		fired = true
		gotLen = n
	}, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if tr.last().Opcode != OpCreateFile {
		t.Fatalf("expected CreateFile sent, got %s", tr.last().Opcode)
	}
	if e.write.total != 4 {
		t.Fatalf("block count = %d, want 4", e.write.total)
	}

	e.handleCreateFileReply(Frame{Opcode: OpAck, ReqOpcode: OpCreateFile})
	if e.write.pending == 0 {
		t.Fatal("expected initial write burst to be pending")
	}

	// Ack blocks out of order: 2, 0, 3, 1.
	for _, idx := range []int{2, 0, 3, 1} {
		e.handleWriteReply(Frame{Opcode: OpAck, ReqOpcode: OpWriteFile, Offset: uint32(idx * cfg.WriteSize)})
	}

	if !fired {
		t.Fatal("put callback did not fire after all blocks acked")
	}
	if gotLen != 250 {
		t.Errorf("callback reported %d bytes, want 250", gotLen)
	}
	if e.write.list != nil {
		t.Error("write state should be cleared once the transfer completes")
	}
}

func TestPutCreateFileNack(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	var gotLen int64 = -2
	fired := false
	err := e.Put("local.bin", "remote.bin", bytes.NewReader([]byte("abc")), func(n int64) {
		fired = true
		gotLen = n
	}, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	e.handleCreateFileReply(Frame{Opcode: OpNack, ReqOpcode: OpCreateFile, Payload: []byte{byte(ErrFileProtected)}})

	if !fired {
		t.Fatal("put callback did not fire after CreateFile failure")
	}
	if gotLen != -1 {
		t.Errorf("callback reported %d, want -1 (null sentinel)", gotLen)
	}
}

func TestPutBusyWhileOutstanding(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr)

	if err := e.Put("a.bin", "", bytes.NewReader([]byte("abc")), nil, nil); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := e.Put("b.bin", "", bytes.NewReader([]byte("def")), nil, nil); err != ErrBusy {
		t.Errorf("second concurrent Put = %v, want ErrBusy", err)
	}
}

package mavftp

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"
)

// readState holds the Get engine's state while a download is outstanding,
// grounded on mavftp.py's fh/filename/read_gaps/... instance attributes.
type readState struct {
	sink     sink
	filename string
	useStdin bool // local == "-"

	callback         func(io.ReadSeeker)
	progressCallback func(done, total int64)

	burstSize  int
	totalRead  int64
	reachedEOF bool

	gaps          gapList
	lastBurstRead time.Time
	lastGapSend   time.Time
	retries       int
	duplicates    int
	backlog       int
}

func randPercent() float64 { return rand.Float64() * 100 }

// Get downloads remote into local (local defaults to remote when ""). When
// callback is non-nil or local is "-", the data goes into an in-memory
// buffer instead of a file. callback receives a ReadSeeker
// positioned at 0 on success, or nil on failure/cancellation. progress, if
// non-nil, receives (bytesWrittenSoFar, bytesWrittenSoFar+1) per chunk,
// matching the original's odd "total" semantics (the server never reports
// a real total up front).
func (e *Engine) Get(remote, local string, callback func(io.ReadSeeker), progress func(done, total int64)) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}

	e.terminateSession(nil)

	if local == "" {
		local = remote
	}

	e.logger.Info("getting file", "remote", remote, "local", local)
	e.opStart = time.Now()
	e.read = readState{
		filename: local,
		useStdin: local == "-",
	}
	e.read.callback = callback
	e.read.progressCallback = progress

	e.read.burstSize = e.cfg.BurstReadSize
	if e.read.burstSize < 1 || e.read.burstSize > MaxPayload {
		e.read.burstSize = MaxPayload
	}

	e.openRetries = 0
	return e.send(newFrame(OpOpenFileRO, 0, []byte(remote)))
}

func (e *Engine) handleOpenROReply(op Frame) {
	if op.Opcode != OpAck {
		if e.read.callback == nil || e.cfg.Debug > 0 {
			e.logger.Info("ftp open failed")
		}
		e.terminateSession(ErrRemoteFailure)
		e.finishCmd()
		return
	}

	if e.read.filename == "" {
		return
	}

	if e.read.callback != nil || e.read.useStdin {
		e.read.sink = newMemSink()
	} else {
		f, err := os.Create(e.read.filename)
		if err != nil {
			e.logger.Info("failed to open local file", "file", e.read.filename, "err", err)
			e.terminateSession(fmt.Errorf("%w: %v", ErrOpenFailed, err))
			e.finishCmd()
			return
		}
		e.read.sink = f
	}

	e.read.lastBurstRead = time.Now()
	read := newFrame(OpBurstReadFile, 0, nil)
	read.Size = uint8(e.read.burstSize)
	_ = e.send(read)
}

func (e *Engine) closeReadSink() {
	if e.read.sink != nil {
		_ = e.read.sink.Close()
		e.read.sink = nil
	}
}

// writePayload writes op.Payload at op.Offset, restoring the sink position
// afterward only in callers that need it (mirrors __write_payload, which
// always seeks to op.offset first).
func (e *Engine) writePayload(op Frame) {
	_, _ = e.read.sink.Seek(int64(op.Offset), io.SeekStart)
	_, _ = e.read.sink.Write(op.Payload)
	e.read.totalRead += int64(len(op.Payload))
	e.metrics.addBytesTransferred(int64(len(op.Payload)))
	if e.read.progressCallback != nil {
		e.read.progressCallback(e.read.totalRead, e.read.totalRead+1)
	}
}

func (e *Engine) checkReadFinished() bool {
	if !e.read.reachedEOF || !e.read.gaps.empty() {
		return false
	}
	ofs, _ := e.read.sink.Seek(0, io.SeekCurrent)
	dt := time.Since(e.opStart).Seconds()
	rate := (float64(ofs) / dt) / 1024.0

	switch {
	case e.read.callback != nil:
		_, _ = e.read.sink.Seek(0, io.SeekStart)
		cb := e.read.callback
		e.read.callback = nil
		cb(e.read.sink)
	case e.read.useStdin:
		_, _ = e.read.sink.Seek(0, io.SeekStart)
		data, _ := io.ReadAll(e.read.sink)
		e.logger.Info(string(data))
	default:
		e.logger.Info("got file", "bytes", ofs, "file", e.read.filename, "seconds", dt, "kbps", rate)
	}

	e.terminateSession(nil)
	e.finishCmd()
	return true
}

func (e *Engine) handleBurstRead(op Frame) {
	if e.cfg.PktLossTx > 0 && randPercent() < float64(e.cfg.PktLossTx) {
		if e.cfg.Debug > 0 {
			e.logger.Warn("dropping TX (synthetic loss)")
		}
		return
	}
	if e.read.sink == nil || e.read.filename == "" {
		if op.Session != e.session {
			return
		}
		e.logger.Warn("unexpected burst read reply", "op", op.String())
		return
	}

	e.read.lastBurstRead = time.Now()
	size := len(op.Payload)
	if size > e.read.burstSize {
		e.read.burstSize = MaxPayload
		if e.cfg.Debug > 0 {
			e.logger.Info("setting burst size", "size", e.read.burstSize)
		}
	}

	switch op.Opcode {
	case OpAck:
		ofs, _ := e.read.sink.Seek(0, io.SeekCurrent)
		switch {
		case op.Offset < uint32(ofs):
			idx := e.read.gaps.findExact(op.Offset, len(op.Payload))
			if idx < 0 {
				if e.cfg.Debug > 0 {
					e.logger.Info("dup read reply", "offset", op.Offset, "size", op.Size, "pos", ofs)
				}
				e.read.duplicates++
				e.metrics.incDuplicates()
				return
			}
			e.read.gaps.removeAt(idx)
			e.metrics.setGapCount(e.read.gaps.len())
			e.writePayload(op)
			_, _ = e.read.sink.Seek(ofs, io.SeekStart)
			if e.checkReadFinished() {
				return
			}
		case op.Offset > uint32(ofs):
			gapOffset := uint32(ofs)
			gapLen := op.Offset - gapOffset
			maxRead := uint32(e.read.burstSize)
			for gapLen > maxRead {
				e.read.gaps.add(gapOffset, uint8(maxRead))
				gapOffset += maxRead
				gapLen -= maxRead
			}
			e.read.gaps.add(gapOffset, uint8(gapLen))
			e.metrics.setGapCount(e.read.gaps.len())
			e.writePayload(op)
		default:
			e.writePayload(op)
		}

		if op.BurstComplete {
			if op.Size > 0 && int(op.Size) < e.read.burstSize {
				if !e.read.reachedEOF && e.cfg.Debug > 0 {
					pos, _ := e.read.sink.Seek(0, io.SeekCurrent)
					e.logger.Info("EOF", "pos", pos, "gaps", e.read.gaps.len(), "t", time.Since(e.opStart).Seconds())
				}
				e.read.reachedEOF = true
				if e.checkReadFinished() {
					return
				}
				e.checkReadSend()
				return
			}
			more := *e.lastOp
			more.Offset = op.Offset + uint32(op.Size)
			if e.cfg.Debug > 0 {
				pos, _ := e.read.sink.Seek(0, io.SeekCurrent)
				e.logger.Info("burst continue", "offset", more.Offset, "pos", pos)
			}
			_ = e.send(more)
		}

	case OpNack:
		ecode := op.ErrorCode()
		if e.cfg.Debug > 0 {
			e.logger.Info("burst nack", "op", op.String())
		}
		if ecode == ErrEndOfFile || ecode == ErrNone {
			pos, _ := e.read.sink.Seek(0, io.SeekCurrent)
			if !e.read.reachedEOF && op.Offset > uint32(pos) {
				if e.cfg.Debug > 0 {
					e.logger.Info("burst lost EOF", "pos", pos, "offset", op.Offset)
				}
				return
			}
			if !e.read.reachedEOF && e.cfg.Debug > 0 {
				e.logger.Info("EOF", "pos", pos, "gaps", e.read.gaps.len(), "t", time.Since(e.opStart).Seconds())
			}
			e.read.reachedEOF = true
			if e.checkReadFinished() {
				return
			}
			e.checkReadSend()
		} else if e.cfg.Debug > 0 {
			e.logger.Info("burst nack", "ecode", ecode, "op", op.String())
		}

	default:
		e.logger.Warn("burst error", "op", op.String())
	}
}

// handleReadFileReply handles the reply to a gap-fill ReadFile request.
func (e *Engine) handleReadFileReply(op Frame) {
	if e.read.sink == nil || e.read.filename == "" {
		if e.cfg.Debug > 0 {
			e.logger.Warn("unexpected read reply", "op", op.String())
		}
		return
	}
	if e.read.backlog > 0 {
		e.read.backlog--
	}

	switch op.Opcode {
	case OpAck:
		idx := e.read.gaps.findExact(op.Offset, int(op.Size))
		if idx >= 0 {
			e.read.gaps.removeAt(idx)
			e.metrics.setGapCount(e.read.gaps.len())
			ofs, _ := e.read.sink.Seek(0, io.SeekCurrent)
			e.writePayload(op)
			_, _ = e.read.sink.Seek(ofs, io.SeekStart)
			if e.cfg.Debug > 0 {
				e.logger.Info("removed gap", "offset", op.Offset, "size", op.Size)
			}
			if e.checkReadFinished() {
				return
			}
		} else if int(op.Size) < e.read.burstSize {
			e.logger.Info("file size changed", "size", op.Offset+uint32(op.Size))
			e.terminateSession(ErrRemoteFailure)
			e.finishCmd()
			return
		} else {
			e.read.duplicates++
			e.metrics.incDuplicates()
			if e.cfg.Debug > 0 {
				e.logger.Info("no gap for read", "offset", op.Offset, "remaining", e.read.gaps.len())
			}
		}
	case OpNack:
		e.logger.Info("read failed", "gaps", e.read.gaps.len(), "op", op.String())
		e.terminateSession(ErrRemoteFailure)
		e.finishCmd()
		return
	}
	e.checkReadSend()
}

func (e *Engine) sendGapRead(i int) {
	g := e.read.gaps.items[i]
	if e.cfg.Debug > 0 {
		e.logger.Info("gap read", "length", g.length, "offset", g.offset, "remaining", e.read.gaps.len(), "backlog", e.read.backlog)
	}
	now := time.Now()
	read := newFrame(OpReadFile, g.offset, nil)
	read.Size = g.length
	_ = e.send(read)
	e.read.gaps.markSent(i, now)
	e.read.lastGapSend = now
	e.read.backlog++
}

// checkReadSend implements spec.md §4.3's gap-scheduling policy.
func (e *Engine) checkReadSend() {
	if e.read.gaps.empty() {
		return
	}

	if !e.read.reachedEOF {
		for {
			sent := false
			for i, g := range e.read.gaps.items {
				if g.lastSent.IsZero() {
					e.sendGapRead(i)
					sent = true
					break
				}
			}
			if !sent {
				break
			}
		}
		return
	}

	g, _ := e.read.gaps.front()
	now := time.Now()
	if !g.lastSent.IsZero() && now.Sub(g.lastSent) > e.cfg.RetryTime {
		if e.read.backlog > 0 {
			e.read.backlog--
		}
		e.read.gaps.resetFrontTimer()
		g, _ = e.read.gaps.front()
	}

	if !g.lastSent.IsZero() {
		return
	}
	if e.read.backlog >= e.cfg.MaxBacklog {
		return
	}
	if now.Sub(e.read.lastGapSend) < minGapSendInterval {
		return
	}
	e.sendGapRead(0)
}

func (e *Engine) fireReadCallbacks(_ io.ReadSeeker) {
	if e.read.callback != nil {
		cb := e.read.callback
		e.read.callback = nil
		cb(nil)
	}
	if e.read.progressCallback != nil {
		e.read.progressCallback = nil
	}
}

package mavftp

import (
	"io"
	"os"
	"strings"
	"time"
)

// writeState holds the Put engine's state while an upload is outstanding,
// grounded on mavftp.py's write_list/write_idx/... instance attributes.
type writeState struct {
	fh       io.ReadSeeker
	filename string
	closer   io.Closer // non-nil when Put opened the local file itself

	callback         func(int64)
	progressCallback func(float64)

	blockSize int
	fileSize  int64
	total     int
	list      map[int]struct{}
	idx       int
	recvIdx   int
	acks      int
	pending   int
	lastSend  time.Time
}

// Put uploads the contents of fh (or, if fh is nil, opens local for
// reading) to remote on the flight controller. callback receives the
// number of bytes written on success, or -1 on failure or cancellation.
// local is the source path and fh, if non-nil, overrides it.
func (e *Engine) Put(local string, remote string, fh io.ReadSeeker, callback func(int64), progress func(float64)) error {
	if e.write.list != nil {
		return ErrBusy
	}
	if err := e.acquireCmd(); err != nil {
		return err
	}

	var closer io.Closer
	if fh == nil {
		f, err := os.Open(local)
		if err != nil {
			e.logger.Error("failed to open local file", "file", local, "err", err)
			e.releaseCmd()
			return ErrOpenFailed
		}
		fh = f
		closer = f
	}

	if remote == "" {
		remote = baseName(local)
	}
	if strings.HasSuffix(remote, "/") {
		remote += baseName(local)
	}
	if callback == nil {
		e.logger.Info("putting file", "local", local, "remote", remote)
	}

	fileSize, _ := fh.Seek(0, io.SeekEnd)
	_, _ = fh.Seek(0, io.SeekStart)

	blockSize := e.cfg.WriteSize
	blockCount := int(fileSize) / blockSize
	if int(fileSize)%blockSize != 0 {
		blockCount++
	}

	list := make(map[int]struct{}, blockCount)
	for i := 0; i < blockCount; i++ {
		list[i] = struct{}{}
	}

	e.write = writeState{
		fh:               fh,
		filename:         remote,
		closer:           closer,
		callback:         callback,
		progressCallback: progress,
		blockSize:        blockSize,
		fileSize:         fileSize,
		total:            blockCount,
		list:             list,
		idx:              0,
		recvIdx:          -1,
		pending:          0,
	}
	e.opStart = time.Now()

	return e.send(newFrame(OpCreateFile, 0, []byte(remote)))
}

func baseName(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return p
	}
	return p[i+1:]
}

func (e *Engine) putFinished(flen int64) {
	if e.write.progressCallback != nil {
		e.write.progressCallback(1.0)
		e.write.progressCallback = nil
	}
	if e.write.callback != nil {
		cb := e.write.callback
		e.write.callback = nil
		cb(flen)
	} else {
		dt := time.Since(e.opStart).Seconds()
		rate := (float64(flen) / dt) / 1024.0
		e.logger.Info("put file", "bytes", flen, "file", e.write.filename, "seconds", dt, "kbps", rate)
	}
	if e.write.closer != nil {
		_ = e.write.closer.Close()
	}
}

func (e *Engine) handleCreateFileReply(op Frame) {
	if e.write.list == nil {
		e.terminateSession(nil)
		e.finishCmd()
		return
	}
	if op.Opcode == OpAck {
		e.sendMoreWrites()
	} else {
		e.logger.Error("create failed")
		e.terminateSession(ErrRemoteFailure)
		e.finishCmd()
	}
}

// sendMoreWrites implements spec.md §4.4's pipelined write scheduler.
func (e *Engine) sendMoreWrites() {
	if len(e.write.list) == 0 {
		e.putFinished(e.write.fileSize)
		e.terminateSession(nil)
		e.finishCmd()
		return
	}

	now := time.Now()
	if !e.write.lastSend.IsZero() {
		threshold := 10 * e.rtt
		if threshold > time.Second {
			threshold = time.Second
		}
		if threshold < 200*time.Millisecond {
			threshold = 200 * time.Millisecond
		}
		if now.Sub(e.write.lastSend) > threshold {
			if e.write.pending > 0 {
				e.write.pending--
			}
		}
	}

	n := e.cfg.WriteQSize - e.write.pending
	if len(e.write.list) < n {
		n = len(e.write.list)
	}
	for i := 0; i < n; i++ {
		idx := e.write.idx
		for {
			if _, ok := e.write.list[idx]; ok {
				break
			}
			idx = (idx + 1) % e.write.total
		}
		ofs := idx * e.write.blockSize
		_, _ = e.write.fh.Seek(int64(ofs), io.SeekStart)
		buf := make([]byte, e.write.blockSize)
		nr, _ := e.write.fh.Read(buf)
		_ = e.send(newFrame(OpWriteFile, uint32(ofs), buf[:nr]))
		e.write.idx = (idx + 1) % e.write.total
		e.write.pending++
		e.write.lastSend = now
	}
}

func (e *Engine) handleWriteReply(op Frame) {
	if e.write.list == nil {
		e.terminateSession(nil)
		e.finishCmd()
		return
	}
	if op.Opcode != OpAck {
		e.logger.Warn("write failed")
		e.terminateSession(ErrRemoteFailure)
		e.finishCmd()
		return
	}

	idx := int(op.Offset) / e.write.blockSize
	count := (idx - e.write.recvIdx) % e.write.total
	if count < 0 {
		count += e.write.total
	}

	e.write.pending -= count
	if e.write.pending < 0 {
		e.write.pending = 0
	}
	e.write.recvIdx = idx
	if _, ok := e.write.list[idx]; ok {
		blockBytes := e.write.fileSize - int64(idx*e.write.blockSize)
		if blockBytes > int64(e.write.blockSize) {
			blockBytes = int64(e.write.blockSize)
		}
		e.metrics.addBytesTransferred(blockBytes)
	}
	delete(e.write.list, idx)
	e.write.acks++
	if e.write.progressCallback != nil {
		e.write.progressCallback(float64(e.write.acks) / float64(e.write.total))
	}
	e.sendMoreWrites()
}

// firePutCallbacks fires the pending put callback with -1, the null
// sentinel for a byte count (spec.md §4.2/§7): a failed or canceled put
// never reports a non-negative length.
func (e *Engine) firePutCallbacks() {
	if e.write.callback != nil {
		cb := e.write.callback
		e.write.callback = nil
		cb(-1)
	}
	e.write.progressCallback = nil
	if e.write.closer != nil {
		_ = e.write.closer.Close()
		e.write.closer = nil
	}
}

package mavftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DirEntry is one parsed ListDirectory entry (spec.md §4.5, supplemented
// per SPEC_FULL.md §12).
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64 // zero for directories
}

// Listing is the accumulated result of a List call.
type Listing struct {
	Entries   []DirEntry
	TotalSize int64
}

type listState struct {
	dirOffset uint32
	totalSize int64
	entries   []DirEntry
	onDone    func(*Listing, error)
}

// List requests the contents of the remote directory path (default "/"
// when empty), paging internally until the server reports EndOfFile.
// Like Get/Put, List does not block: it sends the first request and
// returns; the result arrives via callback once the caller's Execute loop
// has driven the paged replies to completion.
func (e *Engine) List(path string, callback func(*Listing, error)) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}

	if path == "" {
		path = "/"
	}
	e.logger.Info("listing directory", "path", path)
	e.list = listState{onDone: callback}

	return e.send(newFrame(OpListDirectory, 0, []byte(path)))
}

func (e *Engine) handleListReply(op Frame) {
	switch {
	case op.Opcode == OpAck:
		entries := bytes.Split(op.Payload, []byte{0})
		sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i], entries[j]) < 0 })
		for _, d := range entries {
			if len(d) == 0 {
				continue
			}
			e.list.dirOffset++
			switch d[0] {
			case 'D':
				e.list.entries = append(e.list.entries, DirEntry{Name: string(d[1:]), IsDir: true})
				e.logger.Info("  D", "name", string(d[1:]))
			case 'F':
				parts := strings.SplitN(string(d[1:]), "\t", 2)
				if len(parts) != 2 {
					continue
				}
				size, _ := strconv.ParseInt(parts[1], 10, 64)
				e.list.totalSize += size
				e.list.entries = append(e.list.entries, DirEntry{Name: parts[0], Size: size})
				e.logger.Info("  F", "name", parts[0], "size", size)
			default:
				e.logger.Info(string(d))
			}
		}
		more := *e.lastOp
		more.Offset = e.list.dirOffset
		_ = e.send(more)

	case op.Opcode == OpNack && len(op.Payload) == 1 && ErrorCode(op.Payload[0]) == ErrEndOfFile:
		e.logger.Info("total size", "kbytes", float64(e.list.totalSize)/1024.0)
		result := &Listing{Entries: e.list.entries, TotalSize: e.list.totalSize}
		e.list.totalSize = 0
		e.finishCmd()
		if e.list.onDone != nil {
			cb := e.list.onDone
			e.list.onDone = nil
			cb(result, nil)
		}

	default:
		e.logger.Info("list", "op", op.String())
	}
}

// Rm removes a remote file.
func (e *Engine) Rm(name string) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}
	e.logger.Info("removing file", "name", name)
	return e.send(newFrame(OpRemoveFile, 0, []byte(name)))
}

// Rmdir removes a remote directory.
func (e *Engine) Rmdir(name string) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}
	e.logger.Info("removing directory", "name", name)
	return e.send(newFrame(OpRemoveDirectory, 0, []byte(name)))
}

func (e *Engine) handleRemoveReply(op Frame) {
	if op.Opcode != OpAck {
		e.logger.Warn("remove failed", "op", op.String())
	}
	e.finishCmd()
}

// Rename renames a remote file or directory.
func (e *Engine) Rename(oldName, newName string) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}
	e.logger.Info("renaming", "old", oldName, "new", newName)
	payload := append([]byte(oldName), 0)
	payload = append(payload, []byte(newName)...)
	return e.send(newFrame(OpRename, 0, payload))
}

func (e *Engine) handleRenameReply(op Frame) {
	if op.Opcode != OpAck {
		e.logger.Error("rename failed", "op", op.String())
	}
	e.finishCmd()
}

// Mkdir creates a remote directory.
func (e *Engine) Mkdir(name string) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}
	e.logger.Info("creating directory", "name", name)
	return e.send(newFrame(OpCreateDirectory, 0, []byte(name)))
}

func (e *Engine) handleMkdirReply(op Frame) {
	if op.Opcode != OpAck {
		e.logger.Error("create directory failed", "op", op.String())
	}
	e.finishCmd()
}

// Crc requests the server-computed CRC32 of a remote file.
func (e *Engine) Crc(name string) error {
	if err := e.acquireCmd(); err != nil {
		return err
	}
	e.crcName = name
	e.opStart = time.Now()
	e.logger.Info("getting crc", "name", name)
	return e.send(newFrame(OpCalcFileCRC32, 0, []byte(name)))
}

func (e *Engine) handleCRCReply(op Frame) {
	if op.Opcode == OpAck && op.Size == 4 && len(op.Payload) == 4 {
		crc := binary.LittleEndian.Uint32(op.Payload)
		e.logger.Info("crc", "name", e.crcName, "crc", fmt.Sprintf("0x%08x", crc), "seconds", time.Since(e.opStart).Seconds())
		e.lastCRC = crc
	} else {
		e.logger.Error("crc failed", "op", op.String())
	}
	e.finishCmd()
}

// LastCRC returns the CRC32 reported by the most recent completed Crc call.
func (e *Engine) LastCRC() uint32 { return e.lastCRC }

// Cancel tears down any in-flight command immediately. (Defined in
// engine.go; present here only as documentation of the command surface.)

// Status summarizes the active transfer, matching cmd_status's wording.
type Status struct {
	Active  bool
	Offset  int64
	Gaps    int
	Retries int
	KBps    float64
}

func (s Status) String() string {
	if !s.Active {
		return "No transfer in progress"
	}
	return fmt.Sprintf("Transfer at offset %d with %d gaps %d retries %.1f kByte/sec",
		s.Offset, s.Gaps, s.Retries, s.KBps)
}

// Status reports the state of the active Get, if any.
func (e *Engine) Status() Status {
	if e.read.sink == nil {
		return Status{}
	}
	ofs, _ := e.read.sink.Seek(0, 1)
	dt := time.Since(e.opStart).Seconds()
	rate := (float64(ofs) / dt) / 1024.0
	return Status{
		Active:  true,
		Offset:  ofs,
		Gaps:    e.read.gaps.len(),
		Retries: e.read.retries,
		KBps:    rate,
	}
}

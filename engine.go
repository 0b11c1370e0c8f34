// Package mavftp implements the client side of the MAVLink File Transfer
// Protocol (MAVFTP): a session-oriented file exchange protocol layered on
// MAVLink datagrams, used to exchange files with a flight controller over
// a lossy serial or radio link.
//
// The engine is single-threaded cooperative: all state mutation happens on
// the goroutine that calls the command surface, HandlePacket, or Tick. Only
// one high-level command may be outstanding at a time.
package mavftp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Engine is a MAVFTP client session against one target system/component.
// It is not safe for concurrent use from multiple goroutines; callers must
// serialize command, HandlePacket, and Tick calls (normally via Execute).
type Engine struct {
	transport       Transport
	targetSystem    uint8
	targetComponent uint8
	cfg             Config
	logger          *slog.Logger
	metrics         *Metrics
	limiter         *rate.Limiter // nil when Config.FrameRateLimit == 0
	busy            *semaphore.Weighted
	handlers        map[OpCode]func(Frame)

	traceID string

	// Session manager state (spec.md §4.2).
	seq        uint8
	session    uint8
	lastOp     *Frame
	lastOpTime time.Time
	rtt        time.Duration
	opPending  bool
	opStart    time.Time
	lastErr    error

	openRetries int

	// Read engine state (spec.md §4.3), valid while a Get is outstanding.
	read readState

	// Write engine state (spec.md §4.4), valid while a Put is outstanding.
	write writeState

	// List state (spec.md §4.5).
	list listState

	// Crc command state.
	crcName string
	lastCRC uint32
}

// NewEngine creates an Engine targeting the given MAVLink system/component
// over transport. cfg tunables are defaulted in place. A nil logger
// defaults to slog.Default(); a nil metrics disables Prometheus collection.
func NewEngine(transport Transport, targetSystem, targetComponent uint8, cfg Config, logger *slog.Logger, metrics *Metrics) *Engine {
	cfg.defaults()

	if logger == nil {
		logger = slog.Default()
	}
	id := xid.New().String()
	logger = logger.With("trace", id)

	var limiter *rate.Limiter
	if cfg.FrameRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FrameRateLimit), 1)
	}

	e := &Engine{
		transport:       transport,
		targetSystem:    targetSystem,
		targetComponent: targetComponent,
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics,
		limiter:         limiter,
		busy:            semaphore.NewWeighted(1),
		traceID:         id,
		rtt:             defaultRTT,
		lastOpTime:      time.Now(),
	}
	e.handlers = map[OpCode]func(Frame){
		OpListDirectory:    e.handleListReply,
		OpOpenFileRO:       e.handleOpenROReply,
		OpBurstReadFile:    e.handleBurstRead,
		OpTerminateSession: func(Frame) {},
		OpCreateFile:       e.handleCreateFileReply,
		OpWriteFile:        e.handleWriteReply,
		OpRemoveFile:       e.handleRemoveReply,
		OpRemoveDirectory:  e.handleRemoveReply,
		OpRename:           e.handleRenameReply,
		OpCreateDirectory:  e.handleMkdirReply,
		OpReadFile:         e.handleReadFileReply,
		OpCalcFileCRC32:    e.handleCRCReply,
	}
	return e
}

// LastError returns the error (if any) recorded at the most recent
// TerminateSession, so a caller driving Execute can tell a clean completion
// from a failure without parsing logs.
func (e *Engine) LastError() error { return e.lastErr }

// acquireCmd enforces spec.md §5's single-outstanding-command rule.
func (e *Engine) acquireCmd() error {
	if !e.busy.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

func (e *Engine) releaseCmd() { e.busy.Release(1) }

// finishCmd clears the outstanding-operation flag and releases the
// single-flight guard acquired by the command that started it. Idempotent:
// only releases once per acquire, since terminateSession and a handler can
// both observe completion on the same command.
func (e *Engine) finishCmd() {
	if e.opPending {
		e.opPending = false
		// opPending is also set by frames sent with no command holding the
		// guard (e.g. Cancel while idle); take the guard first in that case
		// so the release below never exceeds what was acquired.
		e.busy.TryAcquire(1)
		e.releaseCmd()
	}
}

// send stamps, packs, rate-limits, and transmits a frame, then advances the
// session sequence counter and records it as the outstanding operation
// (spec.md §4.2).
func (e *Engine) send(op Frame) error {
	op.Seq = uint16(e.seq)
	op.Session = e.session

	if e.limiter != nil {
		_ = e.limiter.Wait(context.Background())
	}

	buf := op.pack()
	if err := e.transport.SendFrame(e.targetSystem, e.targetComponent, buf); err != nil {
		return fmt.Errorf("mavftp: send frame: %w", err)
	}
	e.metrics.incFramesSent()

	e.seq = uint8(e.seq + 1)
	stored := op
	e.lastOp = &stored
	now := time.Now()
	if e.cfg.Debug > 1 {
		e.logger.Info("send", "op", op.String(), "dt", now.Sub(e.lastOpTime).Seconds())
	}
	e.lastOpTime = now
	e.opPending = true
	return nil
}

// terminateSession sends TerminateSession, fires any pending completion
// callbacks with the null sentinel exactly once (spec.md §4.2, §7), resets
// per-transfer state, and cycles the session id.
func (e *Engine) terminateSession(cause error) {
	_ = e.send(newFrame(OpTerminateSession, 0, nil))

	e.closeReadSink()
	e.read.filename = ""
	e.write.list = nil

	e.fireReadCallbacks(nil)
	e.firePutCallbacks()

	e.read.gaps.clear()
	e.read.totalRead = 0
	e.read.lastBurstRead = time.Time{}
	e.read.lastGapSend = time.Time{}

	e.session = uint8(e.session + 1)
	e.read.reachedEOF = false
	e.read.backlog = 0
	e.read.duplicates = 0
	e.metrics.setGapCount(0)

	e.lastErr = cause
	if e.cfg.Debug > 0 {
		if cause != nil {
			e.logger.Info("terminated session", "err", cause)
		} else {
			e.logger.Info("terminated session")
		}
	}
}

// Cancel tears down any in-flight command immediately.
func (e *Engine) Cancel() {
	e.terminateSession(ErrCanceled)
	e.finishCmd()
}

// HandlePacket processes one inbound FILE_TRANSFER_PROTOCOL message. It is
// one of the engine's two reentrant entry points (the other is Tick).
func (e *Engine) HandlePacket(msg *Message) {
	if msg.TargetSystem != e.transport.SourceSystem() || msg.TargetComponent != e.transport.SourceComponent() {
		if e.cfg.Debug > 0 {
			e.logger.Info("discarding frame not addressed to us", "target_system", msg.TargetSystem, "target_component", msg.TargetComponent)
		}
		return
	}

	op, err := unpackFrame(msg.Payload)
	if err != nil {
		e.logger.Warn("malformed frame", "err", err)
		return
	}

	now := time.Now()
	dt := now.Sub(e.lastOpTime)
	if e.cfg.Debug > 1 {
		e.logger.Info("recv", "op", op.String(), "dt", dt.Seconds())
	}
	e.lastOpTime = now

	if e.cfg.PktLossRx > 0 && randPercent() < float64(e.cfg.PktLossRx) {
		if e.cfg.Debug > 1 {
			e.logger.Warn("dropping packet RX (synthetic loss)")
		}
		return
	}

	if e.lastOp != nil && op.ReqOpcode == e.lastOp.Opcode && op.Seq == uint16((uint8(e.lastOp.Seq)+1)%256) {
		if dt < e.rtt {
			e.rtt = dt
		}
		if e.rtt < minRTT {
			e.rtt = minRTT
		}
	}

	handler, ok := e.handlers[op.ReqOpcode]
	if !ok {
		e.logger.Info("unknown reply", "op", op.String())
		return
	}
	handler(op)
}

// Tick runs the idle/ticker periodic work (spec.md §4.6): open retry,
// burst-stall detection, and gap re-requests. It is the engine's second
// reentrant entry point.
func (e *Engine) Tick() {
	now := time.Now()

	if e.opStart != (time.Time{}) && e.lastOp != nil && e.lastOp.Opcode == OpOpenFileRO &&
		now.Sub(e.opStart) > defaultOpenRetryInterval {
		e.opStart = now
		e.openRetries++
		e.metrics.incFramesRetried()
		if e.openRetries > maxOpenRetries {
			e.opStart = time.Time{}
			e.terminateSession(fmt.Errorf("%w: OpenFileRO retry limit exceeded", ErrTimeout))
			e.finishCmd()
			return
		}
		if e.cfg.Debug > 0 {
			e.logger.Info("retrying open")
		}
		resend := *e.lastOp
		_ = e.send(newFrame(OpTerminateSession, 0, nil))
		e.session = uint8(e.session + 1)
		resend.Session = e.session
		_ = e.send(resend)
	}

	if e.read.gaps.empty() && e.read.lastBurstRead.IsZero() && e.write.list == nil {
		return
	}
	if e.read.sink == nil {
		return
	}

	if !e.read.reachedEOF && !e.read.lastBurstRead.IsZero() && now.Sub(e.read.lastBurstRead) > e.cfg.RetryTime {
		e.read.lastBurstRead = now
		pos, _ := e.read.sink.Seek(0, 1)
		if e.cfg.Debug > 0 {
			e.logger.Info("retry burst read", "offset", pos, "rtt", e.rtt.Seconds())
		}
		retry := newFrame(OpBurstReadFile, uint32(pos), nil)
		retry.Size = uint8(e.read.burstSize)
		_ = e.send(retry)
		e.read.retries++
		e.metrics.incFramesRetried()
	}

	e.checkReadSend()
}

// Execute drives HandlePacket/Tick until the outstanding command completes
// or timeout elapses, matching spec.md §6's execute(timeout) driver loop.
// On timeout it logs a warning, terminates the session with ErrTimeout
// recorded as LastError, and returns ErrTimeout.
func (e *Engine) Execute(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for e.opPending {
		msg, err := e.transport.RecvMatch(ctx, 100*time.Millisecond)
		if err != nil {
			return fmt.Errorf("mavftp: transport error: %w", err)
		}
		if msg != nil {
			e.HandlePacket(msg)
		}
		e.Tick()
		if time.Now().After(deadline) {
			e.logger.Warn("FTP timed out")
			e.terminateSession(ErrTimeout)
			e.finishCmd()
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

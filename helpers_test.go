package mavftp

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// fakeTransport is a minimal in-memory Transport used across the test
// suite. SendFrame just records what was sent; RecvMatch is unused by
// tests that drive the engine's handlers directly.
type fakeTransport struct {
	sent []Frame
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) SendFrame(targetSystem, targetComponent uint8, payload [TotalPayload]byte) error {
	f, err := unpackFrame(payload[:])
	if err != nil {
		return err
	}
	t.sent = append(t.sent, f)
	return nil
}

func (t *fakeTransport) RecvMatch(ctx context.Context, timeout time.Duration) (*Message, error) {
	return nil, nil
}

func (t *fakeTransport) SourceSystem() uint8    { return 1 }
func (t *fakeTransport) SourceComponent() uint8 { return 1 }

func (t *fakeTransport) last() Frame { return t.sent[len(t.sent)-1] }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(tr Transport) *Engine {
	return NewEngine(tr, 1, 1, DefaultConfig(), testLogger(), nil)
}

package mavftp

import (
	"context"
	"time"
)

// Message is an inbound MAVLink FILE_TRANSFER_PROTOCOL datagram as
// delivered by the host transport. Payload is the raw 251-byte MAVLink
// payload (header + data, zero-padded) carrying an encoded Frame.
type Message struct {
	TargetSystem    uint8
	TargetComponent uint8
	Payload         []byte
}

// Transport is the boundary between the protocol engine and the host's
// MAVLink link. It is intentionally small: the engine never constructs or
// parses MAVLink messages itself, only FILE_TRANSFER_PROTOCOL payloads.
//
// The concrete transport (a real serial/radio link, or a mock for tests)
// is an external collaborator supplied by the embedding application; this
// package never instantiates one.
type Transport interface {
	// SendFrame fire-and-forget sends one FILE_TRANSFER_PROTOCOL payload
	// addressed to targetSystem/targetComponent.
	SendFrame(targetSystem, targetComponent uint8, payload [TotalPayload]byte) error

	// RecvMatch blocks for up to timeout waiting for the next
	// FILE_TRANSFER_PROTOCOL message. Returns (nil, nil) on timeout with no
	// message, matching mavutil.recv_match's None-on-timeout behavior.
	RecvMatch(ctx context.Context, timeout time.Duration) (*Message, error)

	// SourceSystem and SourceComponent identify this engine's own MAVLink
	// identity, used to filter inbound messages not addressed to us.
	SourceSystem() uint8
	SourceComponent() uint8
}

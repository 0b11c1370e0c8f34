package mavftp

import "time"

// OpCode identifies a MAVFTP request or reply frame type.
type OpCode uint8

// Opcodes. Values are fixed by the wire protocol; do not renumber.
const (
	OpNone             OpCode = 0
	OpTerminateSession OpCode = 1
	OpResetSessions    OpCode = 2
	OpListDirectory    OpCode = 3
	OpOpenFileRO       OpCode = 4
	OpReadFile         OpCode = 5
	OpCreateFile       OpCode = 6
	OpWriteFile        OpCode = 7
	OpRemoveFile       OpCode = 8
	OpCreateDirectory  OpCode = 9
	OpRemoveDirectory  OpCode = 10
	OpOpenFileWO       OpCode = 11
	OpTruncateFile     OpCode = 12
	OpRename           OpCode = 13
	OpCalcFileCRC32    OpCode = 14
	OpBurstReadFile    OpCode = 15
	OpAck              OpCode = 128
	OpNack             OpCode = 129
)

// String returns a human-readable opcode name, for logging.
func (o OpCode) String() string {
	switch o {
	case OpNone:
		return "None"
	case OpTerminateSession:
		return "TerminateSession"
	case OpResetSessions:
		return "ResetSessions"
	case OpListDirectory:
		return "ListDirectory"
	case OpOpenFileRO:
		return "OpenFileRO"
	case OpReadFile:
		return "ReadFile"
	case OpCreateFile:
		return "CreateFile"
	case OpWriteFile:
		return "WriteFile"
	case OpRemoveFile:
		return "RemoveFile"
	case OpCreateDirectory:
		return "CreateDirectory"
	case OpRemoveDirectory:
		return "RemoveDirectory"
	case OpOpenFileWO:
		return "OpenFileWO"
	case OpTruncateFile:
		return "TruncateFile"
	case OpRename:
		return "Rename"
	case OpCalcFileCRC32:
		return "CalcFileCRC32"
	case OpBurstReadFile:
		return "BurstReadFile"
	case OpAck:
		return "Ack"
	case OpNack:
		return "Nack"
	default:
		return "Unknown"
	}
}

// ErrorCode is the payload byte that follows a Nack opcode.
type ErrorCode uint8

// Error codes carried in the first payload byte of a Nack frame.
const (
	ErrNone                ErrorCode = 0
	ErrFail                ErrorCode = 1
	ErrFailErrno           ErrorCode = 2
	ErrInvalidDataSize     ErrorCode = 3
	ErrInvalidSession      ErrorCode = 4
	ErrNoSessionsAvailable ErrorCode = 5
	ErrEndOfFile           ErrorCode = 6
	ErrUnknownCommand      ErrorCode = 7
	ErrFileExists          ErrorCode = 8
	ErrFileProtected       ErrorCode = 9
	ErrFileNotFound        ErrorCode = 10
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "None"
	case ErrFail:
		return "Fail"
	case ErrFailErrno:
		return "FailErrno"
	case ErrInvalidDataSize:
		return "InvalidDataSize"
	case ErrInvalidSession:
		return "InvalidSession"
	case ErrNoSessionsAvailable:
		return "NoSessionsAvailable"
	case ErrEndOfFile:
		return "EndOfFile"
	case ErrUnknownCommand:
		return "UnknownCommand"
	case ErrFileExists:
		return "FileExists"
	case ErrFileProtected:
		return "FileProtected"
	case ErrFileNotFound:
		return "FileNotFound"
	default:
		return "Unknown"
	}
}

const (
	// HdrLen is the size in bytes of the fixed FTP frame header.
	HdrLen = 12
	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 239
	// TotalPayload is the fixed MAVLink FILE_TRANSFER_PROTOCOL payload size
	// (header + payload, zero-padded).
	TotalPayload = HdrLen + MaxPayload

	// defaultBurstReadSize is the default requested burst payload size.
	defaultBurstReadSize = 80
	// defaultMaxBacklog bounds concurrently outstanding gap reads post-EOF.
	defaultMaxBacklog = 5
	// defaultWriteSize is the default write block size.
	defaultWriteSize = 80
	// defaultWriteQSize bounds outstanding writes.
	defaultWriteQSize = 5
	// maxOpenRetries caps OpenFileRO retransmission attempts: the original
	// open plus this many resends equals 3 total OpenFileRO sends before
	// giving up (spec.md §4.6/§8 Scenario 5).
	maxOpenRetries = 2
)

const (
	// defaultRetryTime is the gap/burst retry deadline.
	defaultRetryTime = 500 * time.Millisecond
	// minGapSendInterval throttles gap-read sends (spec §4.3).
	minGapSendInterval = 50 * time.Millisecond
	// defaultOpenRetryInterval is how long to wait before retrying OpenFileRO.
	defaultOpenRetryInterval = 1 * time.Second
	// defaultRTT is the initial smoothed round-trip time estimate.
	defaultRTT = 500 * time.Millisecond
	// minRTT lower-bounds the smoothed round-trip time estimate.
	minRTT = 10 * time.Millisecond
)

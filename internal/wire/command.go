package wire

import (
	"fmt"

	"github.com/histeq/cluster/internal/histogram"
	"github.com/histeq/cluster/internal/job"
)

// Tag identifies which of the protocol's command shapes a Command
// carries, in place of a visitor over a class hierarchy.
type Tag int

const (
	Helo Tag = iota
	Ehlo
	Job
	Result
	Heartbeat
	Bye
)

func (t Tag) String() string {
	switch t {
	case Helo:
		return "HELO"
	case Ehlo:
		return "EHLO"
	case Job:
		return "JOB"
	case Result:
		return "RESULT"
	case Heartbeat:
		return "HEARTBEAT"
	case Bye:
		return "BYE"
	default:
		return fmt.Sprintf("wire.Tag(%d)", int(t))
	}
}

// Chunk caps a single bulk-payload frame; a Command's Bulk field is
// the concatenation of at most MaxChunks chunks of at most
// MaxChunkSize bytes each, matching MAX_CHUNK_SIZE / MAX_MESSAGE_SIZE.
const (
	MaxChunkSize = 64 * 1024 * 1024
	MaxChunks    = 256
	MaxMessage   = MaxChunkSize * MaxChunks
)

// Command is the single wire type carrying every message this protocol
// exchanges. Only the fields relevant to Tag (and, for Job/Result, to
// JobKind) are populated; the rest are zero.
type Command struct {
	Tag Tag

	// Identity is the worker's 5-symbol identity: set by the worker in
	// Helo, Heartbeat, and Result. Commands the server sends leave it
	// empty; the server addresses workers by the transport's identity
	// frame.
	Identity string

	// JobKind distinguishes a Histogram job/result from an
	// Equalisation job/result. Ignored unless Tag is Job or Result.
	JobKind job.Kind

	// Filename identifies the image a Job or Result concerns, paired
	// with JobKind to form a job.Key.
	Filename string

	// Bulk carries raw image bytes (Job, either kind) or the encoded
	// TIFF result (Result, Equalisation kind), chunked per
	// MaxChunkSize.
	Bulk [][]byte

	// Mapping carries the per-bin remapping table for an Equalisation
	// Job.
	Mapping histogram.Mapping

	// Histogram carries the computed lightness histogram for a
	// Histogram Result.
	Histogram histogram.Histogram

	// HeartbeatReply distinguishes a server reply from a worker
	// request within a Heartbeat command.
	HeartbeatReply bool

	// Load reports the worker's current backlog depth in a Heartbeat
	// request. The worker records it in its trace; the server does not
	// read it.
	Load int

	// Err carries a result-side failure message; empty on success.
	Err string
}

// Key returns the job.Key a Job or Result command concerns. Only
// meaningful when Tag is Job or Result.
func (c Command) Key() job.Key {
	return job.Key{Kind: c.JobKind, Filename: c.Filename}
}

// BulkLen returns the total byte length of all Bulk chunks combined.
func (c Command) BulkLen() int {
	n := 0
	for _, chunk := range c.Bulk {
		n += len(chunk)
	}
	return n
}

package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/histeq/cluster/internal/histogram"
	"github.com/histeq/cluster/internal/job"
)

const (
	fieldTag            = 1
	fieldIdentity       = 2
	fieldJobKind        = 3
	fieldFilename       = 4
	fieldBulkChunk      = 5
	fieldMapping        = 6
	fieldHistogram      = 7
	fieldHeartbeatReply = 8
	fieldLoad           = 9
	fieldErr            = 10
)

// Encode serialises a Command using protobuf wire primitives: a plain
// tagged union of varint, length-delimited, and repeated
// length-delimited fields, with no generated schema.
func Encode(c Command) []byte {
	size := 0
	size += protowire.SizeTag(fieldTag) + protowire.SizeVarint(uint64(c.Tag))

	if c.Identity != "" {
		size += protowire.SizeTag(fieldIdentity) + protowire.SizeBytes(len(c.Identity))
	}
	if c.Tag == Job || c.Tag == Result {
		size += protowire.SizeTag(fieldJobKind) + protowire.SizeVarint(uint64(c.JobKind))
		size += protowire.SizeTag(fieldFilename) + protowire.SizeBytes(len(c.Filename))
	}
	for _, chunk := range c.Bulk {
		size += protowire.SizeTag(fieldBulkChunk) + protowire.SizeBytes(len(chunk))
	}
	if c.Tag == Job && c.JobKind == job.Equalisation {
		size += protowire.SizeTag(fieldMapping) + protowire.SizeBytes(mappingByteLen)
	}
	if c.Tag == Result && c.JobKind == job.Histogram {
		size += protowire.SizeTag(fieldHistogram) + protowire.SizeBytes(histogramByteLen)
	}
	if c.Tag == Heartbeat {
		size += protowire.SizeTag(fieldHeartbeatReply) + protowire.SizeVarint(boolVarint(c.HeartbeatReply))
		size += protowire.SizeTag(fieldLoad) + protowire.SizeVarint(uint64(c.Load))
	}
	if c.Err != "" {
		size += protowire.SizeTag(fieldErr) + protowire.SizeBytes(len(c.Err))
	}

	buf := make([]byte, 0, size)
	buf = protowire.AppendTag(buf, fieldTag, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Tag))

	if c.Identity != "" {
		buf = protowire.AppendTag(buf, fieldIdentity, protowire.BytesType)
		buf = protowire.AppendString(buf, c.Identity)
	}
	if c.Tag == Job || c.Tag == Result {
		buf = protowire.AppendTag(buf, fieldJobKind, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(c.JobKind))
		buf = protowire.AppendTag(buf, fieldFilename, protowire.BytesType)
		buf = protowire.AppendString(buf, c.Filename)
	}
	for _, chunk := range c.Bulk {
		buf = protowire.AppendTag(buf, fieldBulkChunk, protowire.BytesType)
		buf = protowire.AppendBytes(buf, chunk)
	}
	if c.Tag == Job && c.JobKind == job.Equalisation {
		buf = protowire.AppendTag(buf, fieldMapping, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeMapping(c.Mapping))
	}
	if c.Tag == Result && c.JobKind == job.Histogram {
		buf = protowire.AppendTag(buf, fieldHistogram, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeHistogram(c.Histogram))
	}
	if c.Tag == Heartbeat {
		buf = protowire.AppendTag(buf, fieldHeartbeatReply, protowire.VarintType)
		buf = protowire.AppendVarint(buf, boolVarint(c.HeartbeatReply))
		buf = protowire.AppendTag(buf, fieldLoad, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(c.Load))
	}
	if c.Err != "" {
		buf = protowire.AppendTag(buf, fieldErr, protowire.BytesType)
		buf = protowire.AppendString(buf, c.Err)
	}

	return buf
}

// Decode parses a Command previously produced by Encode. It makes two
// passes over b: the first tallies the bulk chunk count so the
// destination slice can be allocated once instead of growing field by
// field, the second decodes every field.
func Decode(b []byte) (Command, error) {
	var c Command

	chunkCount := 0
	for rest := b; len(rest) > 0; {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return Command{}, fmt.Errorf("wire.Decode: malformed tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]
		if num == fieldBulkChunk {
			chunkCount++
		}
		skip := protowire.ConsumeFieldValue(num, typ, rest)
		if skip < 0 {
			return Command{}, fmt.Errorf("wire.Decode: malformed field %d: %w", num, protowire.ParseError(skip))
		}
		rest = rest[skip:]
	}
	if chunkCount > MaxChunks {
		return Command{}, fmt.Errorf("wire.Decode: %d bulk chunks exceeds MaxChunks %d", chunkCount, MaxChunks)
	}
	if chunkCount > 0 {
		c.Bulk = make([][]byte, 0, chunkCount)
	}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Command{}, fmt.Errorf("wire.Decode: malformed tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldTag:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed tag field: %w", protowire.ParseError(m))
			}
			c.Tag = Tag(v)
			b = b[m:]
		case fieldIdentity:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed identity: %w", protowire.ParseError(m))
			}
			c.Identity = v
			b = b[m:]
		case fieldJobKind:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed job kind: %w", protowire.ParseError(m))
			}
			c.JobKind = job.Kind(v)
			b = b[m:]
		case fieldFilename:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed filename: %w", protowire.ParseError(m))
			}
			c.Filename = v
			b = b[m:]
		case fieldBulkChunk:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed bulk chunk: %w", protowire.ParseError(m))
			}
			if len(v) > MaxChunkSize {
				return Command{}, fmt.Errorf("wire.Decode: bulk chunk of %d bytes exceeds MaxChunkSize", len(v))
			}
			chunk := make([]byte, len(v))
			copy(chunk, v)
			c.Bulk = append(c.Bulk, chunk)
			b = b[m:]
		case fieldMapping:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed mapping: %w", protowire.ParseError(m))
			}
			mapping, err := decodeMapping(v)
			if err != nil {
				return Command{}, err
			}
			c.Mapping = mapping
			b = b[m:]
		case fieldHistogram:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed histogram: %w", protowire.ParseError(m))
			}
			h, err := decodeHistogram(v)
			if err != nil {
				return Command{}, err
			}
			c.Histogram = h
			b = b[m:]
		case fieldHeartbeatReply:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed heartbeat reply flag: %w", protowire.ParseError(m))
			}
			c.HeartbeatReply = v != 0
			b = b[m:]
		case fieldLoad:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed load: %w", protowire.ParseError(m))
			}
			c.Load = int(v)
			b = b[m:]
		case fieldErr:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed err: %w", protowire.ParseError(m))
			}
			c.Err = v
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Command{}, fmt.Errorf("wire.Decode: malformed unknown field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}

	return c, nil
}

const (
	mappingByteLen   = histogram.Segments * 2
	histogramByteLen = histogram.Segments * 8
)

func encodeMapping(m histogram.Mapping) []byte {
	out := make([]byte, mappingByteLen)
	for i, v := range m {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

func decodeMapping(b []byte) (histogram.Mapping, error) {
	var m histogram.Mapping
	if len(b) != mappingByteLen {
		return m, fmt.Errorf("wire.Decode: mapping has %d bytes, want %d", len(b), mappingByteLen)
	}
	for i := range m {
		m[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return m, nil
}

func encodeHistogram(h histogram.Histogram) []byte {
	out := make([]byte, histogramByteLen)
	for i, v := range h {
		bits := math.Float64bits(v)
		for j := 0; j < 8; j++ {
			out[8*i+j] = byte(bits >> (8 * j))
		}
	}
	return out
}

func decodeHistogram(b []byte) (histogram.Histogram, error) {
	var h histogram.Histogram
	if len(b) != histogramByteLen {
		return h, fmt.Errorf("wire.Decode: histogram has %d bytes, want %d", len(b), histogramByteLen)
	}
	for i := range h {
		var bits uint64
		for j := 0; j < 8; j++ {
			bits |= uint64(b[8*i+j]) << (8 * j)
		}
		h[i] = math.Float64frombits(bits)
	}
	return h, nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

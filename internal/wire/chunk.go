package wire

import "fmt"

// Chunk splits data into pieces of at most MaxChunkSize bytes, for use
// as a Command's Bulk field. An empty input produces a single empty
// chunk so the receiving side can still distinguish "zero-length
// payload" from "no bulk payload at all".
func Chunk(data []byte) ([][]byte, error) {
	if len(data) > MaxMessage {
		return nil, fmt.Errorf("wire.Chunk: payload of %d bytes exceeds MaxMessage %d", len(data), MaxMessage)
	}
	if len(data) == 0 {
		return [][]byte{{}}, nil
	}

	var chunks [][]byte
	for len(data) > 0 {
		n := MaxChunkSize
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks, nil
}

// Unchunk reassembles the Bulk field produced by Chunk (or by a
// Decode call) back into a single byte slice.
func Unchunk(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

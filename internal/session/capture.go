package session

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// captureBuffer retains a bounded history of raw UPDATE payloads for
// diagnostic replay, optionally zstd-compressed. Grounded in the
// teacher's internal/history/writer.go StoreRawBytesCompress pattern,
// repurposed here from BMP-message storage to BGP UPDATE storage. Served
// back out over internal/httpapi's /debug/captured-updates endpoint
// (SPEC_FULL.md ยง3's capture.compress wiring), decompressing on read so
// callers always see raw UPDATE bytes regardless of the storage format.
type captureBuffer struct {
	maxEntries int
	compress   bool
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	entries    [][]byte
}

// newCaptureBuffer builds a capture buffer. maxEntries <= 0 disables
// capture entirely (Record becomes a no-op).
func newCaptureBuffer(maxEntries int, compress bool) (*captureBuffer, error) {
	c := &captureBuffer{maxEntries: maxEntries, compress: compress}
	if compress && maxEntries > 0 {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("session: zstd encoder init: %w", err)
		}
		c.encoder = enc
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("session: zstd decoder init: %w", err)
		}
		c.decoder = dec
	}
	return c, nil
}

// Record appends payload (copied) to the buffer, compressing it first
// if configured, and evicts the oldest entry once maxEntries is
// exceeded.
func (c *captureBuffer) Record(payload []byte) {
	if c.maxEntries <= 0 {
		return
	}
	stored := payload
	if c.compress {
		stored = c.encoder.EncodeAll(payload, nil)
	} else {
		stored = append([]byte(nil), payload...)
	}
	c.entries = append(c.entries, stored)
	if len(c.entries) > c.maxEntries {
		c.entries = c.entries[len(c.entries)-c.maxEntries:]
	}
}

// Len reports how many entries are currently retained.
func (c *captureBuffer) Len() int { return len(c.entries) }

// Entries returns every retained raw UPDATE payload, oldest first,
// decompressing each if the buffer was built with compress=true.
func (c *captureBuffer) Entries() ([][]byte, error) {
	if !c.compress {
		out := make([][]byte, len(c.entries))
		copy(out, c.entries)
		return out, nil
	}
	out := make([][]byte, len(c.entries))
	for i, stored := range c.entries {
		raw, err := c.decoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("session: decompressing captured update %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

// Package chunked holds the manifest format a chunked upload writes to
// inbox/<name>/metadata.json: the full file's size and checksum, the chunk
// count and size, and a per-chunk checksum map.
package chunked

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MaxManifestSize bounds the metadata.json object this package will read,
// guarding against a corrupt or hostile inbox object exhausting memory.
const MaxManifestSize = 1 << 20 // 1 MiB

// HashPrefix is stripped from Manifest.FullSum (and not expected on
// per-chunk sums) to mark the hash algorithm explicitly in the wire format.
const HashPrefix = "b3:"

// Manifest is the chunked-upload metadata for one file.
type Manifest struct {
	FullSize  uint64            `json:"full_size"`
	FullSum   string            `json:"full_sum"`
	ChunkN    uint64            `json:"chunk_n"`
	ChunkSize uint64            `json:"chunk_size"`
	Chunks    map[string]string `json:"chunks"`
}

// Decode parses and validates a manifest's self-consistency invariants:
// chunk_n must match len(chunks), and every declared chunk must carry a
// checksum.
func Decode(data []byte) (*Manifest, error) {
	if len(data) > MaxManifestSize {
		return nil, fmt.Errorf("manifest too large: %d bytes exceeds %d byte limit", len(data), MaxManifestSize)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks the manifest is self-consistent, independent of any
// actual chunk objects in storage.
func (m *Manifest) Validate() error {
	if m.ChunkN != uint64(len(m.Chunks)) {
		return fmt.Errorf("manifest self-inconsistent: chunk_n %d != len(chunks) %d", m.ChunkN, len(m.Chunks))
	}
	if m.ChunkN == 0 {
		return fmt.Errorf("manifest declares zero chunks")
	}
	if m.FullSum == "" {
		return fmt.Errorf("manifest missing full_sum")
	}
	for name, sum := range m.Chunks {
		if sum == "" {
			return fmt.Errorf("manifest chunk %q has an empty checksum", name)
		}
	}
	return nil
}

// FullSumHex returns the full-file checksum with any hash-algorithm
// sentinel prefix stripped, ready to compare against a computed digest.
func (m *Manifest) FullSumHex() string {
	return strings.TrimPrefix(m.FullSum, HashPrefix)
}

// OrderedChunkNames returns chunk names sorted lexically; since Chunks is
// a map, callers that need a stable upload-part order must use this.
func (m *Manifest) OrderedChunkNames() []string {
	names := make([]string, 0, len(m.Chunks))
	for name := range m.Chunks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package model

// A Manifest describes a stored file and the ordered chunks that compose it.
// Chunk i holds the bytes [i*ChunkSize, min((i+1)*ChunkSize, Length)) of the file.
type Manifest struct {
	Base `json:",inline" storm:"inline"`

	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Length      int64  `json:"length"`
	ChunkSize   int    `json:"chunk_size"`
	ChunkCount  int    `json:"chunk_count"`
	// ChunkChecksums holds the hex SHA-256 of each chunk, indexed by sequence.
	ChunkChecksums []string `json:"chunk_checksums"`
	// Checksum is the hex MD5 of the whole file.
	Checksum string `json:"checksum"`
}

// ChunkLength returns the expected payload length of the chunk seq.
func (m *Manifest) ChunkLength(seq int) int {
	if seq < 0 || seq >= m.ChunkCount {
		return 0
	}
	if seq < m.ChunkCount-1 {
		return m.ChunkSize
	}
	return int(m.Length - int64(m.ChunkCount-1)*int64(m.ChunkSize))
}

package vector

import "errors"

// ErrUnavailable marks a vector store that could not be reached. It is kept
// distinct from an empty result so callers can tell "no knowledge" apart
// from "knowledge base unreachable".
var ErrUnavailable = errors.New("vector store unavailable")

// Chunk is one persisted fragment of a document: the stored properties plus
// its embedding. ID is the idempotency key in the store; upserting the same
// ID overwrites the stored record.
type Chunk struct {
	ID             string
	Content        string
	SourceFilename string
	ChunkIndex     int
	DocID          string
	Vector         []float32
}

// Match is one nearest-neighbor result. Distance is cosine distance;
// smaller means more similar.
type Match struct {
	ID             string
	Content        string
	SourceFilename string
	ChunkIndex     int
	DocID          string
	Distance       float32
}

// UpsertReport describes the outcome of a batch upsert. A non-empty
// FailedIDs means the write partially failed; the caller must not treat
// those chunk IDs as durable.
type UpsertReport struct {
	Attempted int
	FailedIDs []string
}

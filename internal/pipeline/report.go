package pipeline

import "sync"

// FileFailure records a file that could not be parsed or analyzed.
type FileFailure struct {
	Path string
	Err  error
}

// ChunkFailure records a chunk that was not persisted: embedding retries
// exhausted, store write failure, or run cancellation before upsert.
type ChunkFailure struct {
	ID   string
	Path string
	Err  error
}

// Report is the append-only outcome collector for one ingestion run. It is
// the only structure shared across workers; all writes go through its mutex.
type Report struct {
	mu sync.Mutex

	FilesAttempted  int
	FileFailures    []FileFailure
	ChunksExtracted int
	ChunksSkipped   int
	ChunksPersisted int
	PersistedIDs    []string
	ChunkFailures   []ChunkFailure
}

func newReport() *Report {
	return &Report{}
}

func (r *Report) addFile() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FilesAttempted++
}

func (r *Report) addFileFailure(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FileFailures = append(r.FileFailures, FileFailure{Path: path, Err: err})
}

func (r *Report) addExtracted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChunksExtracted += n
}

func (r *Report) addSkipped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChunksSkipped += n
}

func (r *Report) addPersisted(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChunksPersisted += len(ids)
	r.PersistedIDs = append(r.PersistedIDs, ids...)
}

func (r *Report) addChunkFailures(path string, ids []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.ChunkFailures = append(r.ChunkFailures, ChunkFailure{ID: id, Path: path, Err: err})
	}
}

// PartiallyFailed reports whether any file or chunk outcome failed.
func (r *Report) PartiallyFailed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.FileFailures) > 0 || len(r.ChunkFailures) > 0
}

package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

// commitTimeout bounds the record and rotation work that follows a provider
// side change.
const commitTimeout = 30 * time.Second

const (
	vectorFileCompleted = "completed"
	vectorFileFailed    = "failed"
	vectorFileCancelled = "cancelled"
)

type KnowledgeConfig struct {
	VectorStoreID string
	UploadDir     string
	Workers       int
	// IndexPollAttempts bounds the wait for vector store indexing after a
	// link. Zero skips the wait.
	IndexPollAttempts int
	IndexPollInterval time.Duration
}

// KnowledgeStore is everything ingestion persists.
type KnowledgeStore interface {
	FileRecordStore
	OrphanStore
}

// KnowledgeService keeps the provider's vector store and the local file
// records in step, and rotates the conversation context after every change.
type KnowledgeService struct {
	store   KnowledgeStore
	files   FileAPI
	session *ConversationSession
	cfg     KnowledgeConfig
	pool    *ants.Pool
	logger  *zap.Logger
}

func NewKnowledgeService(store KnowledgeStore, files FileAPI, session *ConversationSession, cfg KnowledgeConfig, logger *zap.Logger) (*KnowledgeService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.IndexPollInterval <= 0 {
		cfg.IndexPollInterval = time.Second
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload pool: %w", err)
	}

	return &KnowledgeService{
		store:   store,
		files:   files,
		session: session,
		cfg:     cfg,
		pool:    pool,
		logger:  logger,
	}, nil
}

// Release stops the upload pool.
func (s *KnowledgeService) Release() {
	s.pool.Release()
}

// Ingest uploads r as name, links it into the vector store, records it and
// rotates the conversation context. A file that fails to link is deleted
// from the provider again; if that also fails it is recorded as an orphan.
func (s *KnowledgeService) Ingest(ctx context.Context, r io.Reader, name string) (rec *store.FileRecord, err error) {
	defer func() { knowledgeOps.WithLabelValues("ingest", result(err)).Inc() }()

	name, err = sanitizeFileName(name)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("file_name", name))

	existing, err := s.store.GetFileRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	staged, err := s.stage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer os.Remove(staged)

	file, err := s.files.UploadFile(ctx, staged, name, provider.PurposeAssistants)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	log = log.With(zap.String("file_id", file.ID))
	log.Debug("file uploaded")

	if err := s.link(ctx, file.ID); err != nil {
		s.compensate(ctx, file.ID, "link failed", log)
		return nil, err
	}

	if err := s.session.Lock(ctx); err != nil {
		s.compensate(ctx, file.ID, "cancelled before record", log)
		return nil, err
	}
	defer s.session.Unlock()

	// From here the change is committed together with its rotation, even if
	// the caller goes away.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	rec, err = s.store.PutFileRecord(cctx, name, file.ID)
	if err != nil {
		// Lost a race with another upload of the same name.
		s.compensate(cctx, file.ID, "record failed", log)
		return nil, err
	}
	if _, err := s.session.rotateOrInvalidate(cctx, "ingest"); err != nil {
		return rec, err
	}
	log.Info("file ingested")
	return rec, nil
}

// Upload is one file of a batch. Open is called on a pool worker.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

type IngestResult struct {
	Name   string
	Record *store.FileRecord
	Err    error
}

// IngestBatch ingests uploads concurrently on the worker pool. Results are
// returned in input order, each with its own error.
func (s *KnowledgeService) IngestBatch(ctx context.Context, uploads []Upload) []IngestResult {
	results := make([]IngestResult, len(uploads))
	var wg sync.WaitGroup

	for i, up := range uploads {
		results[i].Name = up.Name
		wg.Add(1)
		i, up := i, up
		task := func() {
			defer wg.Done()
			rc, err := up.Open()
			if err != nil {
				results[i].Err = fmt.Errorf("%w: %w", ErrUpload, err)
				return
			}
			defer rc.Close()
			results[i].Record, results[i].Err = s.Ingest(ctx, rc, up.Name)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("%w: %w", ErrUpload, err)
		}
	}
	wg.Wait()
	return results
}

// Delete removes the named file from the provider and the records, then
// rotates the context. A provider 404 counts as already deleted.
func (s *KnowledgeService) Delete(ctx context.Context, name string) (bool, error) {
	rec, err := s.store.GetFileRecord(ctx, name)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.delete(ctx, rec)
}

// DeleteByFileID is Delete keyed by provider file id. It returns the name
// of the removed file.
func (s *KnowledgeService) DeleteByFileID(ctx context.Context, fileID string) (string, error) {
	rec, err := s.store.GetFileRecordByFileID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("%w: file id %s", ErrNotFound, fileID)
	}
	if _, err := s.delete(ctx, rec); err != nil {
		return "", err
	}
	return rec.Name, nil
}

func (s *KnowledgeService) delete(ctx context.Context, rec *store.FileRecord) (ok bool, err error) {
	defer func() { knowledgeOps.WithLabelValues("delete", result(err)).Inc() }()
	log := s.logger.With(zap.String("file_name", rec.Name), zap.String("file_id", rec.FileID))

	// Locked before the provider delete: a caller that gives up while an
	// answer runs changes nothing.
	if err := s.session.Lock(ctx); err != nil {
		return false, err
	}
	defer s.session.Unlock()

	current, err := s.store.GetFileRecord(ctx, rec.Name)
	if err != nil {
		return false, err
	}
	if current == nil || current.FileID != rec.FileID {
		// A concurrent delete got here first and already rotated.
		return false, fmt.Errorf("%w: %s", ErrNotFound, rec.Name)
	}

	if err := s.files.DeleteFile(ctx, rec.FileID); err != nil {
		if !provider.IsNotFound(err) {
			return false, fmt.Errorf("%w: %w", ErrProviderDelete, err)
		}
		log.Warn("provider file already gone")
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if _, err := s.store.RemoveFileRecord(cctx, rec.Name); err != nil {
		return false, err
	}
	if _, err := s.session.rotateOrInvalidate(cctx, "delete"); err != nil {
		return true, err
	}
	log.Info("file deleted")
	return true, nil
}

func (s *KnowledgeService) List(ctx context.Context) ([]store.FileRecord, error) {
	return s.store.ListFileRecords(ctx)
}

func (s *KnowledgeService) stage(r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.cfg.UploadDir, "staged-"+uuid.NewString()[:8]+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}
	return f.Name(), nil
}

// link attaches the file and, when configured, waits for indexing to settle.
// Indexing that is still running when the wait ends is not an error.
func (s *KnowledgeService) link(ctx context.Context, fileID string) error {
	vsf, err := s.files.AttachVectorStoreFile(ctx, s.cfg.VectorStoreID, fileID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLink, err)
	}

	for attempt := 0; attempt < s.cfg.IndexPollAttempts; attempt++ {
		switch vsf.Status {
		case vectorFileCompleted:
			return nil
		case vectorFileFailed, vectorFileCancelled:
			msg := vsf.Status
			if vsf.LastError != nil {
				msg += ": " + vsf.LastError.Message
			}
			return fmt.Errorf("%w: indexing %s", ErrLink, msg)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLink, ctx.Err())
		case <-time.After(s.cfg.IndexPollInterval):
		}

		next, err := s.files.GetVectorStoreFile(ctx, s.cfg.VectorStoreID, fileID)
		if err != nil {
			if provider.IsRetryable(err) && ctx.Err() == nil {
				continue
			}
			return fmt.Errorf("%w: %w", ErrLink, err)
		}
		vsf = next
	}
	if vsf.Status != vectorFileCompleted && s.cfg.IndexPollAttempts > 0 {
		s.logger.Warn("vector store indexing still pending", zap.String("file_id", fileID), zap.String("status", vsf.Status))
	}
	return nil
}

// compensate deletes an uploaded file that will not be tracked. When the
// provider refuses, the id is kept for the reconciliation sweep.
func (s *KnowledgeService) compensate(ctx context.Context, fileID, reason string, log *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	err := s.files.DeleteFile(cctx, fileID)
	if err == nil || provider.IsNotFound(err) {
		log.Info("untracked provider file deleted", zap.String("reason", reason))
		return
	}
	log.Warn("failed to delete untracked provider file", zap.String("reason", reason), zap.Error(err))
	if err := s.store.AddOrphan(cctx, fileID, reason); err != nil {
		log.Error("failed to record orphaned provider file", zap.Error(err))
	}
}

// sanitizeFileName keeps the base name of a client supplied file name.
func sanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return name, nil
}

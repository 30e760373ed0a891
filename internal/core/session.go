package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"governa.ai/boardroom/internal/provider"
)

// rotationSeed is the neutral first message of a context created after the
// knowledge base changed.
const rotationSeed = "Hi"

// ConversationSession owns the deployment-wide conversation context. All
// reads and writes of the persisted slot happen while the session is locked,
// so an answer never runs against a context that an ingest or delete is
// replacing.
type ConversationSession struct {
	sem           chan struct{}
	store         ContextStore
	threads       ThreadAPI
	vectorStoreID string
	logger        *zap.Logger
}

func NewConversationSession(store ContextStore, threads ThreadAPI, vectorStoreID string, logger *zap.Logger) *ConversationSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationSession{
		sem:           make(chan struct{}, 1),
		store:         store,
		threads:       threads,
		vectorStoreID: vectorStoreID,
		logger:        logger,
	}
}

// Lock acquires exclusive use of the context, giving up when ctx is done.
func (s *ConversationSession) Lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ConversationSession) Unlock() {
	<-s.sem
}

// ensure returns the persisted context id, creating one when the slot is
// empty. The caller must hold the lock.
func (s *ConversationSession) ensure(ctx context.Context) (id string, created bool, err error) {
	id, err = s.store.GetContextID(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrContextCreate, err)
	}
	if id != "" {
		return id, false, nil
	}
	id, err = s.create(ctx, nil, "first_use")
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// rotate replaces the context with a fresh one seeded with a neutral
// message. The caller must hold the lock.
func (s *ConversationSession) rotate(ctx context.Context, reason string) (string, error) {
	return s.create(ctx, []provider.MessageInput{{Role: provider.RoleUser, Content: rotationSeed}}, reason)
}

func (s *ConversationSession) create(ctx context.Context, seed []provider.MessageInput, reason string) (string, error) {
	req := provider.CreateThreadRequest{Messages: seed}
	if s.vectorStoreID != "" {
		req.VectorStoreIDs = []string{s.vectorStoreID}
	}
	thread, err := s.threads.CreateThread(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrContextCreate, err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("%w: provider returned an empty thread id", ErrContextCreate)
	}
	if err := s.store.SetContextID(ctx, thread.ID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrContextCreate, err)
	}
	contextRotations.WithLabelValues(reason).Inc()
	s.logger.Info("conversation context created", zap.String("thread_id", thread.ID), zap.String("reason", reason))
	return thread.ID, nil
}

// invalidate empties the slot so the next answer creates a new context.
// The caller must hold the lock.
func (s *ConversationSession) invalidate(ctx context.Context, reason string) {
	if err := s.store.ClearContextID(ctx); err != nil {
		s.logger.Error("failed to clear conversation context", zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Warn("conversation context cleared", zap.String("reason", reason))
}

// rotateOrInvalidate is used after a knowledge change. If a new context
// cannot be created the old one is cleared anyway, so no later answer runs
// against stale knowledge.
func (s *ConversationSession) rotateOrInvalidate(ctx context.Context, reason string) (string, error) {
	id, err := s.rotate(ctx, reason)
	if err == nil {
		return id, nil
	}
	if clearErr := s.store.ClearContextID(ctx); clearErr != nil {
		return "", fmt.Errorf("%w (clear also failed: %v)", err, clearErr)
	}
	s.logger.Warn("context rotation failed, slot cleared", zap.String("reason", reason), zap.Error(err))
	return "", nil
}

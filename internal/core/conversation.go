package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"governa.ai/boardroom/internal/provider"
)

// State names a step of the answer state machine. It only appears in logs
// and metrics.
type State string

const (
	StateNoContext       State = "no_context"
	StateContextReady    State = "context_ready"
	StateMessageAppended State = "message_appended"
	StateRunStarted      State = "run_started"
	StatePolling         State = "polling"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

const cancelTimeout = 10 * time.Second

type ConversationConfig struct {
	AssistantID     string
	PollInterval    time.Duration
	MaxPollAttempts int
	RunTimeout      time.Duration
	ReplyLookback   int
}

func (c *ConversationConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollAttempts < 1 {
		c.MaxPollAttempts = 90
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 3 * time.Minute
	}
	if c.ReplyLookback < 1 {
		c.ReplyLookback = 3
	}
}

type ConversationService struct {
	session *ConversationSession
	threads ThreadAPI
	cfg     ConversationConfig
	logger  *zap.Logger
}

func NewConversationService(session *ConversationSession, threads ThreadAPI, cfg ConversationConfig, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &ConversationService{
		session: session,
		threads: threads,
		cfg:     cfg,
		logger:  logger,
	}
}

// Answer sends query to the assistant on the shared context and waits for
// the reply. The session stays locked for the whole exchange because the
// provider allows only one active run per thread.
func (s *ConversationService) Answer(ctx context.Context, query string) (string, error) {
	start := time.Now()
	state := StateNoContext
	defer func() {
		answersTotal.WithLabelValues(string(state)).Inc()
		answerLatency.Observe(time.Since(start).Seconds())
	}()

	if err := s.session.Lock(ctx); err != nil {
		state = StateFailed
		return "", err
	}
	defer s.session.Unlock()

	threadID, _, err := s.session.ensure(ctx)
	if err != nil {
		state = StateFailed
		s.logger.Error("answer failed", zap.String("state", string(StateNoContext)), zap.Error(err))
		return "", err
	}
	state = StateContextReady
	log := s.logger.With(zap.String("thread_id", threadID))

	if _, err := s.threads.CreateMessage(ctx, threadID, provider.MessageInput{Role: provider.RoleUser, Content: query}); err != nil {
		if provider.IsNotFound(err) {
			// The thread is gone provider-side; the next answer starts fresh.
			s.session.invalidate(ctx, "thread not found")
		}
		state = StateFailed
		log.Error("answer failed", zap.String("state", string(StateContextReady)), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrMessageAppend, err)
	}
	state = StateMessageAppended

	run, err := s.threads.CreateRun(ctx, threadID, s.cfg.AssistantID)
	if err == nil && run.ID == "" {
		err = errors.New("provider returned an empty run id")
	}
	if err != nil {
		state = StateFailed
		log.Error("answer failed", zap.String("state", string(StateMessageAppended)), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrRunStart, err)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Debug("run started", zap.String("state", string(StateRunStarted)), zap.String("status", string(run.Status)))

	state = StatePolling
	if _, err := s.waitForRun(ctx, threadID, run, log); err != nil {
		state = StateFailed
		log.Warn("run did not complete", zap.Error(err))
		return "", err
	}

	reply, err := s.extractReply(ctx, threadID)
	if err != nil {
		state = StateFailed
		log.Warn("no reply extracted", zap.Error(err))
		return "", err
	}
	state = StateCompleted
	log.Info("answer completed", zap.Duration("elapsed", time.Since(start)))
	return reply, nil
}

// waitForRun polls until the run reaches a terminal status, bounded by both
// MaxPollAttempts and RunTimeout. Only the status check is retried.
func (s *ConversationService) waitForRun(ctx context.Context, threadID string, run *provider.Run, log *zap.Logger) (*provider.Run, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	current := *run
	attempts := 0
	defer func() { runPolls.Observe(float64(attempts)) }()

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

poll:
	for {
		switch classifyRun(current.Status) {
		case runSucceeded:
			runOutcomes.WithLabelValues(string(current.Status)).Inc()
			return &current, nil
		case runFailed:
			runOutcomes.WithLabelValues(string(current.Status)).Inc()
			if current.Status == provider.RunStatusRequiresAction {
				// No tool outputs are ever submitted; free the thread.
				s.cancelRun(ctx, threadID, current.ID, log)
			}
			return nil, newRunError(&current)
		}

		if attempts >= s.cfg.MaxPollAttempts {
			break poll
		}

		select {
		case <-pollCtx.Done():
		case <-timer.C:
		}
		if pollCtx.Err() != nil {
			break poll
		}

		attempts++
		polled, err := s.threads.GetRun(pollCtx, threadID, current.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				break poll
			}
			if provider.IsRetryable(err) {
				log.Warn("run status check failed, retrying", zap.Int("attempt", attempts), zap.Error(err))
				timer.Reset(s.cfg.PollInterval)
				continue
			}
			runOutcomes.WithLabelValues("poll_error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrRunPoll, err)
		}

		if statusRank(polled.Status) >= statusRank(current.Status) {
			if polled.Status != current.Status {
				log.Debug("run status changed", zap.String("from", string(current.Status)), zap.String("to", string(polled.Status)))
			}
			current.Status = polled.Status
			current.LastError = polled.LastError
		} else {
			log.Debug("ignoring run status regression", zap.String("current", string(current.Status)), zap.String("reported", string(polled.Status)))
		}
		timer.Reset(s.cfg.PollInterval)
	}

	runOutcomes.WithLabelValues("timeout").Inc()
	s.cancelRun(ctx, threadID, current.ID, log)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: run %s abandoned: %w", ErrRunTimeout, current.ID, err)
	}
	return nil, fmt.Errorf("%w: run %s still %s after %d checks", ErrRunTimeout, current.ID, current.Status, attempts)
}

// cancelRun asks the provider to stop a run. It outlives a cancelled caller
// context and only logs failures.
func (s *ConversationService) cancelRun(ctx context.Context, threadID, runID string, log *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if _, err := s.threads.CancelRun(cctx, threadID, runID); err != nil {
		log.Warn("failed to cancel run", zap.Error(err))
		return
	}
	log.Info("run cancelled")
}

// extractReply returns the first text part of the first assistant message
// among the latest ReplyLookback messages.
func (s *ConversationService) extractReply(ctx context.Context, threadID string) (string, error) {
	msgs, err := s.threads.ListMessages(ctx, threadID, provider.ListMessagesParams{Limit: s.cfg.ReplyLookback, Order: "desc"})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoAssistantReply, err)
	}
	for _, msg := range msgs {
		if msg.Role != provider.RoleAssistant {
			continue
		}
		if text, ok := msg.FirstText(); ok {
			return text, nil
		}
		return "", fmt.Errorf("%w: message %s has no text part", ErrNoAssistantReply, msg.ID)
	}
	return "", fmt.Errorf("%w: none in the latest %d messages", ErrNoAssistantReply, s.cfg.ReplyLookback)
}

type runClass int

const (
	runPending runClass = iota
	runSucceeded
	runFailed
)

func classifyRun(status provider.RunStatus) runClass {
	switch status {
	case provider.RunStatusCompleted:
		return runSucceeded
	case provider.RunStatusFailed, provider.RunStatusCancelled, provider.RunStatusExpired,
		provider.RunStatusIncomplete, provider.RunStatusRequiresAction:
		return runFailed
	default:
		return runPending
	}
}

// statusRank orders statuses so a stale poll response cannot move a run
// backwards.
func statusRank(status provider.RunStatus) int {
	switch status {
	case provider.RunStatusQueued:
		return 0
	case provider.RunStatusInProgress:
		return 1
	case provider.RunStatusRequiresAction:
		return 2
	case provider.RunStatusCancelling:
		return 3
	case provider.RunStatusCompleted, provider.RunStatusFailed, provider.RunStatusCancelled,
		provider.RunStatusExpired, provider.RunStatusIncomplete:
		return 4
	default:
		return 1
	}
}

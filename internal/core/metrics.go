package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_answers_total",
		Help: "Answer requests by final state",
	}, []string{"state"})

	answerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boardroom_answer_duration_seconds",
		Help:    "End-to-end answer latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
	})

	runPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boardroom_run_polls",
		Help:    "Status checks needed per run",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 45, 90},
	})

	runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_run_outcomes_total",
		Help: "Runs by terminal status as observed by the service",
	}, []string{"status"})

	contextRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_context_rotations_total",
		Help: "Conversation contexts created, by reason",
	}, []string{"reason"})

	knowledgeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_knowledge_operations_total",
		Help: "Knowledge file operations by kind and result",
	}, []string{"op", "result"})

	audioOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_audio_operations_total",
		Help: "Transcriptions and syntheses by result",
	}, []string{"op", "result"})

	orphansSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_orphans_swept_total",
		Help: "Orphaned provider files handled by the reconciliation sweep",
	}, []string{"result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Package orchestrator runs a meeting session: capture, transcription, insights and periodic analysis.
package orchestrator

import "time"

const (
	// Per-subscriber event buffer. Slow subscribers lose events rather than stall the pipeline.
	EventBuffer = 64

	// Extra wait for the transcription loop after its drain bound expires and it is cancelled.
	cancelGrace = 500 * time.Millisecond

	// Queue poll interval for the transcription loop.
	queuePoll = 100 * time.Millisecond
)

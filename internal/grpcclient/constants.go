package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Per-window transcription deadline
	DefaultCallTimeout = 15 * time.Second

	// Health check configuration
	HealthCheckTimeout = 2 * time.Second
)

// Wire contract with the inference server.
const (
	TranscribeMethod = "/sidekick.inference.v1.Transcription/Transcribe"
	ServiceName      = "sidekick.inference.v1.Transcription"

	SampleRateKey  = "x-sample-rate"
	AudioFormatKey = "x-audio-format"
	AudioFormatF32 = "f32le"
)

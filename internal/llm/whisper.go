package llm

import (
	"bytes"
	"context"

	"github.com/openai/openai-go"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/resilience"
)

// Whisper transcribes sample windows with the hosted transcription endpoint.
type Whisper struct{ c *Client }

// Recognizer returns the client's speech-to-text adapter.
func (c *Client) Recognizer() *Whisper { return &Whisper{c: c} }

// Transcribe uploads samples as a 16-bit mono WAV and returns the recognized text.
// Failures are not retried; the next window is the retry.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav := EncodeWAV(samples, w.c.sampleRate)

	ctx, cancel := withTimeout(ctx, w.c.transcribeTimeout)
	defer cancel()
	return resilience.Call(w.c.stt, func() (string, error) {
		resp, err := w.c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
			File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
			Model: openai.AudioModel(w.c.whisper),
		})
		if err != nil {
			return "", classify(err, apperrors.CodeTranscriptionFailed, "transcription")
		}
		return resp.Text, nil
	})
}

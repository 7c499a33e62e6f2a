// Package deepgram implements the transcription adapter against Deepgram's
// pre-recorded audio endpoint. It posts a local WAV file and returns the
// transcript of the first channel's best alternative.
package deepgram

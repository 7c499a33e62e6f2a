// Package ffmpeg wraps the ffmpeg binary as the pipeline's media transcoder.
//
// Transcribe uses ExtractAudio to turn the uploaded video into a
// single-channel 16-bit PCM WAV file; Align uses ApplyFilter to run the
// configured audio filter over synthesized speech. Both run through a
// replaceable command runner so tests never spawn processes.
package ffmpeg

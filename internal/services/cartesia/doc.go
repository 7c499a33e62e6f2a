// Package cartesia implements the speech synthesis adapter against Cartesia's
// text-to-speech "bytes" endpoint. A request carries the text, voice and
// output format; the response body is the encoded audio.
package cartesia

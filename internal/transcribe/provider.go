// Package transcribe holds concrete pkg/provider.Transcriber backends:
// a local whisper.cpp/speaches-compatible HTTP endpoint, and two hosted
// APIs (DeepInfra, ElevenLabs). Each is a thin multipart HTTP client —
// no behavior beyond request shaping and response decoding, consistent
// with how the rest of TARS treats its model collaborators.
package transcribe

// Opts are per-request options for WhisperClient. Empty Prompt and
// Hotwords are omitted from the request; an empty Language is sent as
// "en", and Temperature is always sent, zero included.
type Opts struct {
	Temperature float64
	Language    string
	Prompt      string // initial_prompt / domain vocabulary
	Hotwords    string // vocabulary boost terms
}

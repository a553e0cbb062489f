// Package topics holds the process-wide mapping from event-type
// constants to default MQTT topics (spec §6). The mapping is advisory:
// nothing in the client enforces that a published type matches the
// topic it was published on.
package topics

// Topic describes one row of the authoritative topic/event-type table.
type Topic struct {
	Name      string
	EventType string
	Retained  bool
	QoS       byte
}

// Well-known topics, named exactly as spec §6 lists them.
var (
	STTFinal            = Topic{"stt/final", "stt.final", false, 1}
	STTPartial          = Topic{"stt/partial", "stt.partial", false, 0}
	TTSSay              = Topic{"tts/say", "tts.say", false, 1}
	TTSStatus           = Topic{"tts/status", "tts.status", false, 1}
	TTSControl          = Topic{"tts/control", "tts.control", false, 1}
	LLMRequest          = Topic{"llm/request", "llm.request", false, 1}
	LLMResponse         = Topic{"llm/response", "llm.response", false, 1}
	LLMStream           = Topic{"llm/stream", "llm.stream", false, 0}
	LLMToolCallRequest  = Topic{"llm/tool.call.request", "", false, 1}
	LLMToolCallResult   = Topic{"llm/tool.call.result", "", false, 1}
	LLMToolsRegistry    = Topic{"llm/tools/registry", "tools.registry", true, 1}
	MemoryQuery         = Topic{"memory/query", "memory.query", false, 1}
	MemoryResults       = Topic{"memory/results", "memory.results", false, 1}
	CharacterGet        = Topic{"character/get", "character.get", false, 0}
	CharacterResult     = Topic{"character/result", "character.result", false, 0}
	CharacterCurrent    = Topic{"system/character/current", "character.current", true, 1}
	WakeEvent           = Topic{"wake/event", "wake.event", false, 1}
	WakeMic             = Topic{"wake/mic", "wake.mic", false, 1}
	MovementFrame       = Topic{"movement/frame", "", false, 1}
	MovementState       = Topic{"movement/state", "", false, 1}
)

// registry indexes every topic above by its topic name for the
// ProtocolMismatch check (spec §7): a consumer can ask "does this
// envelope's type match what this topic is registered for?" and log a
// debug-level mismatch rather than reject the message.
var registry = map[string]Topic{}

func init() {
	for _, t := range []Topic{
		STTFinal, STTPartial, TTSSay, TTSStatus, TTSControl,
		LLMRequest, LLMResponse, LLMStream, LLMToolCallRequest, LLMToolCallResult, LLMToolsRegistry,
		MemoryQuery, MemoryResults, CharacterGet, CharacterResult, CharacterCurrent,
		WakeEvent, WakeMic, MovementFrame, MovementState,
	} {
		if t.Name != "" {
			registry[t.Name] = t
		}
	}
}

// HealthTopic returns the retained per-client health topic name.
func HealthTopic(clientID string) string {
	return "system/health/" + clientID
}

// KeepaliveTopic returns the non-retained per-client heartbeat topic.
func KeepaliveTopic(clientID string) string {
	return "system/keepalive/" + clientID
}

// Lookup returns the registered Topic for a topic name, if any.
func Lookup(name string) (Topic, bool) {
	t, ok := registry[name]
	return t, ok
}

// MatchesType reports whether eventType is the one registered for
// topic, or true if the topic is unregistered (nothing to check
// against, so no mismatch can be reported).
func MatchesType(topicName, eventType string) bool {
	t, ok := registry[topicName]
	if !ok || t.EventType == "" {
		return true
	}
	return t.EventType == eventType
}

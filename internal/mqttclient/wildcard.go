package mqttclient

import "strings"

// MatchTopic reports whether topic matches an MQTT subscription
// filter, honoring the standard wildcard semantics: "+" matches
// exactly one level, "#" as the final segment matches zero or more
// trailing levels. A filter with no wildcards matches only itself.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, fp := range filterParts {
		if fp == "#" {
			// "#" must be the last filter segment and matches
			// everything from here on, including zero remaining levels.
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if fp == "+" {
			continue
		}
		if fp != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

// CoverLink - Topic Layout and Display Constants
// Copyright (c) 2025 - Open Source Project

package coverlink

import "strings"

const (
	PROJECT_NAME = "CoverLink"
	VERSION      = "1.0"

	// EmptyPayload is what shairport-sync publishes when a field has no value.
	EmptyPayload = "--"

	DefaultTopicOut  = "iotstack/shairport-extension"
	DefaultCoverSize = 48
	DefaultKeepAlive = 60 // seconds
)

// Subtopics published by shairport-sync under the topic base.
const (
	SubtopicCover       = "cover"
	SubtopicTitle       = "title"
	SubtopicArtist      = "artist"
	SubtopicPlayStart   = "play_start"
	SubtopicPlayEnd     = "play_end"
	SubtopicPlayResume  = "play_resume"
	SubtopicActiveStart = "active_start"
	SubtopicActiveEnd   = "active_end"
)

// DisplaySubtopics are the subtopics the display consumes.
var DisplaySubtopics = []string{
	SubtopicCover,
	SubtopicTitle,
	SubtopicArtist,
	SubtopicPlayStart,
	SubtopicPlayEnd,
	SubtopicPlayResume,
	SubtopicActiveStart,
	SubtopicActiveEnd,
}

// Display geometry of the SH1106 panel.
const (
	DisplayWidth   = 128
	DisplayHeight  = 64
	DisplayAddress = 0x3C
)

// Topic joins a topic base and a subtopic.
func Topic(base, subtopic string) string {
	return strings.TrimSuffix(base, "/") + "/" + subtopic
}

// Subtopic returns the part of topic below base, and false when topic is not
// under base.
func Subtopic(base, topic string) (string, bool) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	return topic[len(prefix):], true
}

// WildcardBase strips trailing wildcard and separator characters from a
// subscription filter, turning "iotstack/shairport/#" into "iotstack/shairport".
func WildcardBase(filter string) string {
	return strings.TrimRight(filter, "/#")
}

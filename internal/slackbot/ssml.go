package slackbot

import "github.com/you/echo-relay/internal/speech"

// ExtractSpeech returns the plain text of a speech output with each
// <audio src="..."/> tag turned into a Slack link.
func ExtractSpeech(s string) string {
	return speech.Extract(s, audioLink)
}

func audioLink(src string) string {
	return "<" + src + "|:speaker: Audio>"
}

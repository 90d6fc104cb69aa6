package slackbot

import "github.com/you/echo-relay/internal/core"

// NoReply is the body sent when the backend produced neither speech nor audio.
const NoReply = ":mute: _No reply_"

const (
	speechAuthor = ":speech_balloon: Speech"
	speechColor  = "#F7DC6F"
	streamAuthor = ":speaker: Audio Stream"
	streamColor  = "#D0D3D4"
	cardAuthor   = ":card_index: Card"
	cardColor    = "#ccf2ff"
)

// Format maps one backend result to an outbound reply. Attachments are
// ordered speech, stream, card.
func Format(result core.QueryResult) core.Outbound {
	var (
		out     core.Outbound
		content bool
	)

	if result.Text != "" {
		out.Attachments = append(out.Attachments, core.Attachment{
			AuthorName: speechAuthor,
			Color:      speechColor,
			Text:       ExtractSpeech(result.Text),
		})
		content = true
	}

	if result.StreamURL != "" {
		out.Attachments = append(out.Attachments, core.Attachment{
			AuthorName: streamAuthor,
			Color:      streamColor,
			Text:       "<" + result.StreamURL + "|Link To Audio>",
		})
		content = true
	}

	if card := result.Card; card != nil {
		out.Attachments = append(out.Attachments, core.Attachment{
			AuthorName: cardAuthor,
			Color:      cardColor,
			Title:      CardTitle(*card),
			Text:       card.Content,
			ImageURL:   card.ImageURL,
		})
	}

	if len(out.Attachments) > 0 && result.Skill != nil && result.Skill.Name != "" {
		out.Attachments[0].AuthorName = result.Skill.Name
		out.Attachments[0].AuthorIcon = result.Skill.ImageURL
	}

	if !content {
		out.Body = NoReply
	}
	return out
}

// CardTitle joins main title and subtitle with a newline, dropping either
// when empty.
func CardTitle(card core.Card) string {
	switch {
	case card.MainTitle != "" && card.SubTitle != "":
		return card.MainTitle + "\n" + card.SubTitle
	case card.MainTitle != "":
		return card.MainTitle
	default:
		return card.SubTitle
	}
}

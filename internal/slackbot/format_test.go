package slackbot

import (
	"testing"

	"github.com/you/echo-relay/internal/core"
)

func TestCardTitle(t *testing.T) {
	cases := []struct {
		name string
		card core.Card
		want string
	}{
		{"main only", core.Card{MainTitle: "Weather"}, "Weather"},
		{"sub only", core.Card{SubTitle: "Seattle"}, "Seattle"},
		{"both", core.Card{MainTitle: "Weather", SubTitle: "Seattle"}, "Weather\nSeattle"},
		{"neither", core.Card{Content: "body"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CardTitle(tc.card); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestFormatNoReply(t *testing.T) {
	out := Format(core.QueryResult{})
	if out.Body != NoReply {
		t.Fatalf("expected no-reply body, got %q", out.Body)
	}
	if len(out.Attachments) != 0 {
		t.Fatalf("expected no attachments, got %d", len(out.Attachments))
	}

	out = Format(core.QueryResult{Card: &core.Card{MainTitle: "Only a card", Content: "text", ImageURL: "https://img/x.png"}})
	if out.Body != NoReply {
		t.Fatalf("expected no-reply body with card only, got %q", out.Body)
	}
	if len(out.Attachments) != 1 {
		t.Fatalf("expected card attachment, got %d", len(out.Attachments))
	}
	card := out.Attachments[0]
	if card.AuthorName != cardAuthor || card.Title != "Only a card" || card.Text != "text" || card.ImageURL != "https://img/x.png" {
		t.Fatalf("unexpected card attachment: %+v", card)
	}
}

func TestFormatOrderAndSkillStamp(t *testing.T) {
	result := core.QueryResult{
		Text:      "It is sunny",
		StreamURL: "https://audio/1.mp3",
		Card:      &core.Card{SubTitle: "Forecast"},
		Skill:     &core.Skill{ID: "amzn1.ask.skill.1", Name: "Weather Skill", ImageURL: "https://img/skill.png"},
	}
	out := Format(result)
	if out.Body != "" {
		t.Fatalf("expected empty body, got %q", out.Body)
	}
	if len(out.Attachments) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(out.Attachments))
	}

	speech, stream, card := out.Attachments[0], out.Attachments[1], out.Attachments[2]
	if speech.AuthorName != "Weather Skill" || speech.AuthorIcon != "https://img/skill.png" {
		t.Fatalf("expected skill stamp on first attachment, got %+v", speech)
	}
	if speech.Color != speechColor || speech.Text != "It is sunny" {
		t.Fatalf("unexpected speech attachment: %+v", speech)
	}
	if stream.AuthorName != streamAuthor || stream.Text != "<https://audio/1.mp3|Link To Audio>" {
		t.Fatalf("unexpected stream attachment: %+v", stream)
	}
	if card.AuthorName != cardAuthor || card.Title != "Forecast" {
		t.Fatalf("unexpected card attachment: %+v", card)
	}
}

func TestFormatStreamOnly(t *testing.T) {
	out := Format(core.QueryResult{StreamURL: "https://audio/2.mp3"})
	if out.Body != "" || len(out.Attachments) != 1 {
		t.Fatalf("unexpected outbound: %+v", out)
	}
	if out.Attachments[0].AuthorName != streamAuthor {
		t.Fatalf("expected stream to be first, got %+v", out.Attachments[0])
	}
}

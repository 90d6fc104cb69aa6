package twitterbot

import (
	"html"
	"strings"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/speech"
)

const (
	siteURL      = "https://silentecho.bespoken.io"
	aboutURL     = "https://bespoken.tools"
	defaultImage = "/static/shh-3.png"

	// DefaultDescription is used when the reply has speech but no card text.
	DefaultDescription = "Click to see the rest of the reply from Alexa"
)

// Tweet is the part of an inbound tweet a reply page needs.
type Tweet struct {
	ID         string
	Text       string
	ScreenName string
}

// Post is the reply page for one answered tweet. Title, Description and
// ImageURL feed the twitter:card meta tags. Speech is the answer text with
// any speech markup removed.
type Post struct {
	Tweet       Tweet
	Result      core.QueryResult
	Speech      string
	Title       string
	Description string
	ImageURL    string
}

// NewPost derives the card summary from a backend result. baseURL hosts the
// fallback image.
func NewPost(tweet Tweet, result core.QueryResult, baseURL string) *Post {
	p := &Post{Tweet: tweet, Result: result, Speech: speech.Plain(result.Text)}
	p.ImageURL = strings.TrimRight(baseURL, "/") + defaultImage
	if strings.TrimSpace(baseURL) == "" {
		p.ImageURL = siteURL + defaultImage
	}

	if p.Speech != "" {
		p.Title = p.Speech
		p.Description = DefaultDescription
	}

	if c := result.Card; c != nil {
		switch {
		case c.MainTitle != "":
			p.Title = c.MainTitle
		case c.SubTitle != "":
			p.Title = c.SubTitle
		case c.Content != "":
			p.Title = c.Content
		}
		if (c.MainTitle != "" || c.SubTitle != "") && c.Content != "" {
			p.Description = c.Content
		}
		if c.ImageURL != "" {
			p.ImageURL = c.ImageURL
		}
	}
	return p
}

// URL is where the page is served.
func (p *Post) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/twitter_reply/" + p.Tweet.ID
}

// Status is the reply tweet: the author's handle, the first 50 characters of
// speech and the page link. ok is false when there is no speech to share.
func (p *Post) Status(baseURL string) (status string, ok bool) {
	if p.Speech == "" {
		return "", false
	}
	short := p.Speech
	if r := []rune(short); len(r) > 50 {
		short = string(r[:50])
	}
	return "@" + p.Tweet.ScreenName + " " + short + " " + p.URL(baseURL), true
}

// HTML renders the page. Every value taken from the tweet or the backend is
// escaped; card text keeps its line breaks.
func (p *Post) HTML() string {
	esc := html.EscapeString
	var b strings.Builder

	b.WriteString("<html><head>\n")
	b.WriteString("<link rel='stylesheet' href='https://fonts.googleapis.com/css?family=Lato'>\n")
	b.WriteString("<link rel='stylesheet' href='/post.css'>\n")
	b.WriteString("<link rel='icon' type='image/png' sizes='96x96' href='/favicon.ico'>\n")
	meta(&b, "twitter:card", "summary")
	meta(&b, "twitter:site", "@silentechobot")
	meta(&b, "twitter:title", p.Title)
	meta(&b, "twitter:description", p.Description)
	meta(&b, "twitter:image", p.ImageURL)
	b.WriteString("</head>\n<body>\n<table align='center'>\n")

	row(&b, "<a href='"+siteURL+"'><img src='"+siteURL+defaultImage+"' width='100'></a>", "", "")
	row(&b, "Silent Echo Tweet", "", "title")
	row(&b, "Message", esc(p.Tweet.Text), "")

	if p.Speech != "" {
		row(&b, "Transcript", esc(p.Speech), "")
		if p.Result.StreamURL != "" {
			row(&b, "Transcript Audio", "<a target='_blank' href='"+esc(p.Result.StreamURL)+"'>Listen</a>", "")
		}
	}

	if c := p.Result.Card; c != nil {
		row(&b, "Card", "", "card")
		if c.MainTitle != "" {
			row(&b, "Card Title", esc(c.MainTitle), "")
		}
		if c.SubTitle != "" {
			row(&b, "Card Subtitle", esc(c.SubTitle), "")
		}
		if c.Content != "" {
			row(&b, "Card Text", strings.ReplaceAll(esc(c.Content), "\n", "<br>"), "")
		}
		if c.ImageURL != "" {
			row(&b, "", "<img src='"+esc(c.ImageURL)+"' width='500' />", "")
		}
	}

	row(&b, "<a href='"+siteURL+"'>Silent Echo</a>", "", "about")
	row(&b, "<a href='"+aboutURL+"'>By Bespoken</a>", "", "")
	b.WriteString("</table>\n</body>\n</html>\n")
	return b.String()
}

func meta(b *strings.Builder, name, content string) {
	b.WriteString("<meta name='" + name + "' content='" + html.EscapeString(content) + "' />\n")
}

// row writes one table row. With both field and value the row has two cells;
// otherwise whichever is set spans both columns.
func row(b *strings.Builder, field, value, class string) {
	if class != "" {
		b.WriteString("<tr valign='top' class='" + class + "'>")
	} else {
		b.WriteString("<tr valign='top'>")
	}
	switch {
	case field != "" && value != "":
		b.WriteString("<td nowrap class='field'>" + field + "</td>")
		b.WriteString("<td class='value'>" + value + "</td>")
	case value != "":
		b.WriteString("<td class='value' colspan='2' align='center'>" + value + "</td>")
	default:
		b.WriteString("<td class='field' colspan='2' align='center'>" + field + "</td>")
	}
	b.WriteString("</tr>\n")
}

package speech

import "testing"

func link(src string) string { return "[" + src + "]" }

func TestExtract(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain text untouched", "Hello there", "Hello there"},
		{"simple", "<speak>Hello there</speak>", "Hello there"},
		{"nested", "<speak><p>One <emphasis level=\"strong\">two</emphasis></p> three</speak>", "One two three"},
		{"audio", "<speak>Listen <audio src=\"https://a/b.mp3\"/> done</speak>", "Listen [https://a/b.mp3] done"},
		{"audio single quotes", "<speak><audio src='https://a/c.mp3'></audio></speak>", "[https://a/c.mp3]"},
		{"audio unquoted", "<speak><audio src=https://a/d.mp3 /></speak>", "[https://a/d.mp3]"},
		{"data-src is not src", "<speak><audio data-src=\"x.mp3\" src=\"y.mp3\"/></speak>", "[y.mp3]"},
		{"only data-src", "<speak>a<audio data-src=\"x.mp3\"/>b</speak>", "ab"},
		{"leading space", "  <speak>Hi</speak>", "Hi"},
		{"unclosed tag", "<speak>Hi <break", "Hi <break"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Extract(tc.in, link); got != tc.want {
				t.Fatalf("Extract(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestPlain(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello  there", "Hello  there"},
		{"<speak>It is noon <audio src='https://a/x.mp3'/></speak>", "It is noon"},
		{"<speak>Listen <audio src=\"https://a/b.mp3\"/> done</speak>", "Listen done"},
		{"<speak><p>One</p>\n<p>two</p></speak>", "One two"},
	}
	for _, tc := range cases {
		if got := Plain(tc.in); got != tc.want {
			t.Errorf("Plain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

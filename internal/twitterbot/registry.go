package twitterbot

import (
	"sync"

	"github.com/you/echo-relay/internal/core"
)

// Sample page ids, kept for checking the card markup from a browser or the
// Twitter card validator.
const (
	SampleNoImage = "testCardNoImage"
	SampleImage   = "testCardImage"
)

// Registry keeps reply pages in memory, keyed by tweet id. Pages live for
// the process lifetime.
type Registry struct {
	baseURL string

	mu    sync.RWMutex
	posts map[string]*Post
}

func NewRegistry(baseURL string) *Registry {
	return &Registry{baseURL: baseURL, posts: make(map[string]*Post)}
}

func (r *Registry) Put(p *Post) {
	if p == nil || p.Tweet.ID == "" {
		return
	}
	r.mu.Lock()
	r.posts[p.Tweet.ID] = p
	r.mu.Unlock()
}

// Get returns the page for a tweet id, or one of the sample pages.
func (r *Registry) Get(id string) (*Post, bool) {
	switch id {
	case SampleNoImage:
		return r.sample(id, ""), true
	case SampleImage:
		return r.sample(id, "https://pbs.twimg.com/media/DEuqiuBXUAAZOpO.jpg"), true
	}
	r.mu.RLock()
	p, ok := r.posts[id]
	r.mu.RUnlock()
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.posts)
}

func (r *Registry) sample(id, imageURL string) *Post {
	card := &core.Card{MainTitle: "This is a short message in reply", ImageURL: imageURL}
	if imageURL == "" {
		card.Content = "This is short text field"
	} else {
		card.Content = "This is a longer text field that goes on for a while to check wrapping" +
			"\nWith multiple lines\nAnd more lines\n"
	}
	result := core.QueryResult{
		Text:      "Hello there",
		StreamURL: "https://myaudio.com",
		Card:      card,
	}
	return NewPost(Tweet{ID: id, Text: "@silentechobot tell me something", ScreenName: "silentechobot"}, result, r.baseURL)
}

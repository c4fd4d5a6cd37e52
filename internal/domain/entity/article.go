// Package entity defines the core domain entities for the feed acquisition
// engine: articles, feed sources, and the error taxonomy shared by the fetch
// pipeline, the cache, and the batch loader.
package entity

import (
	"sort"
	"time"
)

// Article represents a single normalized feed item.
// It is an immutable value once produced by the parse pipeline;
// the ordering key across feeds is PublishedAt descending.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"pubDate"`
	Description string    `json:"description"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	SourceTitle string    `json:"sourceTitle"`
}

// SortArticles orders articles by publication date, newest first.
// Ties are broken by link to keep the order deterministic.
func SortArticles(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].PublishedAt.Equal(articles[j].PublishedAt) {
			return articles[i].Link < articles[j].Link
		}
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}

// FeedSource is a feed subscription supplied by configuration.
// The engine does not own these; it only consumes them.
type FeedSource struct {
	URL         string `yaml:"url" json:"url"`
	CustomTitle string `yaml:"custom_title,omitempty" json:"customTitle,omitempty"`
	CategoryID  string `yaml:"category_id,omitempty" json:"categoryId,omitempty"`
}

// Title returns the display title for the source: the custom title when
// configured, otherwise the fallback (typically the parsed feed title).
func (s FeedSource) Title(fallback string) string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	return fallback
}

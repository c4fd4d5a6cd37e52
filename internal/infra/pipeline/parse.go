package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedgate/internal/domain/entity"
)

// Result is the normalized outcome of a successful feed acquisition.
type Result struct {
	Title    string
	Articles []entity.Article
}

// parseFeedXML parses a raw XML feed body into a Result. The body passes the
// document structure check before gofeed ever sees it.
func parseFeedXML(body []byte, clock func() time.Time) (*Result, error) {
	if err := checkFeedStructure(body); err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrFeedParse, err)
	}

	articles := make([]entity.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		articles = append(articles, articleFromItem(item, feed.Title, clock))
	}
	return &Result{Title: feed.Title, Articles: articles}, nil
}

// articleFromItem maps a gofeed item onto the domain article shape.
// Items without a parseable publication date get the current time so they
// sort to the top rather than vanishing to the epoch.
func articleFromItem(item *gofeed.Item, feedTitle string, clock func() time.Time) entity.Article {
	pubAt := clock()
	if item.PublishedParsed != nil {
		pubAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		pubAt = *item.UpdatedParsed
	}

	article := entity.Article{
		Title:       item.Title,
		Link:        item.Link,
		PublishedAt: pubAt,
		Description: item.Description,
		Content:     item.Content,
		Categories:  item.Categories,
		SourceTitle: feedTitle,
	}

	if item.Author != nil {
		article.Author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		article.Author = item.Authors[0].Name
	}

	if item.Image != nil {
		article.ImageURL = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		switch {
		case article.ImageURL == "" && strings.HasPrefix(enc.Type, "image/"):
			article.ImageURL = enc.URL
		case article.AudioURL == "" && strings.HasPrefix(enc.Type, "audio/"):
			article.AudioURL = enc.URL
		}
	}

	return article
}

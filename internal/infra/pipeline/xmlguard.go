package pipeline

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"feedgate/internal/domain/entity"
)

// feedRootTags is the allow-list of document root elements accepted as feeds.
var feedRootTags = map[string]struct{}{
	"rss":  {},
	"feed": {},
	"RDF":  {},
}

// checkFeedStructure walks the token stream of a candidate feed document and
// rejects anything that is not a single-rooted RSS, Atom or RDF document.
// Multiple root nodes, unknown root tags and inline DTDs are all rejected
// before the body ever reaches a full feed parser.
func checkFeedStructure(body []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var rootCount int
	var depth int

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: malformed XML: %v", entity.ErrFeedParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				rootCount++
				if rootCount > 1 {
					return fmt.Errorf("%w: multiple root elements", entity.ErrSecurityValidation)
				}
				if _, ok := feedRootTags[t.Name.Local]; !ok {
					return fmt.Errorf("%w: root element %q is not a feed", entity.ErrSecurityValidation, t.Name.Local)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.Directive:
			// <!DOCTYPE ...> opens the door to entity expansion tricks.
			if bytes.HasPrefix(bytes.TrimSpace(t), []byte("DOCTYPE")) {
				return fmt.Errorf("%w: DOCTYPE declaration in feed", entity.ErrSecurityValidation)
			}
		}
	}

	if rootCount == 0 {
		return fmt.Errorf("%w: no root element", entity.ErrFeedParse)
	}
	return nil
}

package pipeline

import (
	"errors"
	"testing"

	"feedgate/internal/domain/entity"
)

func TestCheckFeedStructure_AcceptsFeedRoots(t *testing.T) {
	docs := map[string]string{
		"rss":  `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title></channel></rss>`,
		"atom": `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>t</title></feed>`,
		"rdf":  `<?xml version="1.0"?><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><channel></channel></rdf:RDF>`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			if err := checkFeedStructure([]byte(doc)); err != nil {
				t.Errorf("valid %s document rejected: %v", name, err)
			}
		})
	}
}

func TestCheckFeedStructure_RejectsMultipleRoots(t *testing.T) {
	doc := `<rss version="2.0"><channel></channel></rss><rss><channel></channel></rss>`
	err := checkFeedStructure([]byte(doc))
	if !errors.Is(err, entity.ErrSecurityValidation) {
		t.Errorf("expected security validation error for multiple roots, got %v", err)
	}
}

func TestCheckFeedStructure_RejectsNonFeedRoot(t *testing.T) {
	err := checkFeedStructure([]byte(`<svg><script>alert(1)</script></svg>`))
	if !errors.Is(err, entity.ErrSecurityValidation) {
		t.Errorf("expected security validation error for svg root, got %v", err)
	}
}

func TestCheckFeedStructure_RejectsDoctype(t *testing.T) {
	doc := `<!DOCTYPE rss [<!ENTITY x SYSTEM "file:///etc/passwd">]><rss version="2.0"><channel></channel></rss>`
	err := checkFeedStructure([]byte(doc))
	if !errors.Is(err, entity.ErrSecurityValidation) {
		t.Errorf("expected security validation error for DOCTYPE, got %v", err)
	}
}

func TestCheckFeedStructure_RejectsEmpty(t *testing.T) {
	err := checkFeedStructure([]byte("   "))
	if !errors.Is(err, entity.ErrFeedParse) {
		t.Errorf("expected parse error for empty document, got %v", err)
	}
}

// internal/dom/css.go
package dom

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// evalCSS matches selector against the document and returns matching element
// nodes in document order. The selector is compiled with cascadia.Compile
// rather than goquery's Find because Find panics on malformed input, and the
// oracle's output is untrusted; a compile error is an ordinary non-match.
func evalCSS(doc *Document, selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(doc.root).FindMatcher(sel).Nodes, nil
}

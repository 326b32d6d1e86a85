// internal/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// evalXPath evaluates expr against the document rooted at root. Evaluation is
// delegated to htmlquery so the offline path agrees with the browser's own
// XPath engine. One extra constraint applies before compilation: candidate
// locators must be absolute ("/..." or "//..."), because a relative path
// means something different depending on where it is evaluated and a learned
// locator has to resolve the same way against a fixture and a live session.
// Compile errors surface as ordinary errors, which strategy iteration treats
// as a non-match.
func evalXPath(root *html.Node, expr string) ([]*html.Node, error) {
	if !strings.HasPrefix(strings.TrimSpace(expr), "/") {
		return nil, fmt.Errorf("only absolute and descendant paths are supported")
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, err
	}
	// An expression can select text or attribute nodes; only elements are
	// addressable handles.
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out, nil
}

// internal/dom/dom.go

// Package dom provides a static, in-memory implementation of the DOM-query
// capability over parsed HTML documents. It backs offline resolution against
// fixture files and the package's own tests; live sessions use the chromedp
// adapter in dom/cdp instead.
//
// Static documents have no layout engine, so bounding boxes are synthesized
// deterministically from document structure: elements are laid out top to
// bottom in document order with an indent per nesting level. That keeps the
// positional similarity term meaningful across two parses of structurally
// similar documents.
package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Synthetic layout constants for the pseudo-geometry of static documents.
const (
	indentPerDepth = 16.0
	rowHeight      = 24.0
	defaultWidth   = 160.0
)

// Document is a parsed HTML document implementing schemas.DOMQuery.
type Document struct {
	root *html.Node
	// order and depth index every element node for document-order
	// enumeration and synthetic geometry.
	order map[*html.Node]int
	depth map[*html.Node]int
	// elements holds all element nodes in document order.
	elements []*html.Node
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	doc := &Document{
		root:  root,
		order: make(map[*html.Node]int),
		depth: make(map[*html.Node]int),
	}
	doc.index(root, 0)
	return doc, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func (d *Document) index(n *html.Node, depth int) {
	if n.Type == html.ElementNode {
		d.order[n] = len(d.elements)
		d.depth[n] = depth
		d.elements = append(d.elements, n)
		depth++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c, depth)
	}
}

// handle wraps one element node of this document.
func (d *Document) handle(n *html.Node) schemas.ElementHandle {
	return &element{doc: d, n: n}
}

func (d *Document) handles(nodes []*html.Node) []schemas.ElementHandle {
	out := make([]schemas.ElementHandle, len(nodes))
	for i, n := range nodes {
		out[i] = d.handle(n)
	}
	return out
}

// FindOne resolves the locator to exactly one element.
func (d *Document) FindOne(ctx context.Context, loc schemas.Locator) (schemas.ElementHandle, error) {
	all, err := d.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	switch len(all) {
	case 0:
		return nil, schemas.ErrElementNotFound
	case 1:
		return all[0], nil
	default:
		return nil, &schemas.AmbiguousMatchError{Locator: loc, Count: len(all)}
	}
}

// FindAll resolves the locator to all matching elements in document order.
func (d *Document) FindAll(ctx context.Context, loc schemas.Locator) ([]schemas.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch loc.Language {
	case schemas.QueryXPath:
		nodes, err := evalXPath(d.root, loc.Value)
		if err != nil {
			return nil, fmt.Errorf("evaluating xpath %q: %w", loc.Value, err)
		}
		return d.handles(d.sortDocumentOrder(nodes)), nil
	case schemas.QueryCSS:
		nodes, err := evalCSS(d, loc.Value)
		if err != nil {
			return nil, fmt.Errorf("evaluating css %q: %w", loc.Value, err)
		}
		return d.handles(nodes), nil
	default:
		return nil, fmt.Errorf("unsupported query language %q", loc.Language)
	}
}

// AllElements enumerates every element node in document order.
func (d *Document) AllElements(ctx context.Context) ([]schemas.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.handles(d.elements), nil
}

// Snapshot serializes the document back to HTML.
func (d *Document) Snapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("rendering document: %w", err)
	}
	return buf.String(), nil
}

func (d *Document) sortDocumentOrder(nodes []*html.Node) []*html.Node {
	// htmlquery yields each context node's results in document order, but
	// axis steps from several context nodes can revisit the same element;
	// dedupe while preserving the first occurrence, then order by index.
	seen := make(map[*html.Node]bool, len(nodes))
	var uniq []*html.Node
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			uniq = append(uniq, n)
		}
	}
	for i := 1; i < len(uniq); i++ {
		for j := i; j > 0 && d.order[uniq[j]] < d.order[uniq[j-1]]; j-- {
			uniq[j], uniq[j-1] = uniq[j-1], uniq[j]
		}
	}
	return uniq
}

// -- Element handle --

type element struct {
	doc *Document
	n   *html.Node
}

func (e *element) TagName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.ToLower(e.n.Data), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return collapseWhitespace(nodeText(e.n)), nil
}

func (e *element) Attributes(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(e.n.Attr))
	for _, a := range e.n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return attrs, nil
}

func (e *element) BoundingBox(ctx context.Context) (schemas.Point, schemas.Size, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Point{}, schemas.Size{}, err
	}
	pos := schemas.Point{
		X: float64(e.doc.depth[e.n]) * indentPerDepth,
		Y: float64(e.doc.order[e.n]) * rowHeight,
	}
	return pos, schemas.Size{Width: defaultWidth, Height: rowHeight}, nil
}

func (e *element) Parent(ctx context.Context) (schemas.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for p := e.n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return e.doc.handle(p), nil
		}
	}
	return nil, nil
}

func (e *element) SiblingIndex(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	sameTag, overall := 1, 1
	for s := e.n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type != html.ElementNode {
			continue
		}
		overall++
		if s.Data == e.n.Data {
			sameTag++
		}
	}
	return sameTag, overall, nil
}

func (e *element) AssociatedLabel(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// Prefer an explicit <label for=...> association.
	if id := attrValue(e.n, "id"); id != "" {
		for _, label := range collectElements(e.doc.root, "label") {
			if attrValue(label, "for") == id {
				return collapseWhitespace(nodeText(label)), nil
			}
		}
	}
	// Otherwise an enclosing <label> counts.
	for p := e.n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "label" {
			return collapseWhitespace(nodeText(p)), nil
		}
	}
	return "", nil
}

// -- Shared tree helpers --

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return sb.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collectElements(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (tag == "" || n.Data == tag) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

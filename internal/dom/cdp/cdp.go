// internal/dom/cdp/cdp.go

// Package cdp adapts a live chromedp browser session to the DOM-query
// capability. It never manages browser lifecycle: the caller owns the
// allocator and session context and passes the session context into every
// call, so timeouts and cancellation stay under the host's control.
package cdp

import (
	"context"
	"fmt"
	"strings"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Session implements schemas.DOMQuery against a chromedp session. The ctx
// passed to each method must be the active chromedp session context.
type Session struct {
	log *zap.Logger
}

// NewSession creates the adapter.
func NewSession(logger *zap.Logger) *Session {
	return &Session{log: logger.Named("cdp_dom")}
}

func queryOption(lang schemas.QueryLanguage) (chromedp.QueryOption, error) {
	switch lang {
	case schemas.QueryCSS:
		return chromedp.ByQueryAll, nil
	case schemas.QueryXPath:
		return chromedp.BySearch, nil
	default:
		return nil, fmt.Errorf("unsupported query language %q", lang)
	}
}

// FindOne resolves the locator to exactly one element.
func (s *Session) FindOne(ctx context.Context, loc schemas.Locator) (schemas.ElementHandle, error) {
	all, err := s.FindAll(ctx, loc)
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
func (s *Session) FindAll(ctx context.Context, loc schemas.Locator) ([]schemas.ElementHandle, error) {
	opt, err := queryOption(loc.Language)
	if err != nil {
		return nil, err
	}
	var nodes []*cdpproto.Node
	// AtLeast(0) keeps an empty result from blocking until timeout.
	if err := chromedp.Run(ctx, chromedp.Nodes(loc.Value, &nodes, opt, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("querying %s: %w", loc, err)
	}
	return s.wrap(nodes), nil
}

// AllElements enumerates every element in the current document.
func (s *Session) AllElements(ctx context.Context) ([]schemas.ElementHandle, error) {
	var nodes []*cdpproto.Node
	if err := chromedp.Run(ctx, chromedp.Nodes("//*", &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("enumerating document elements: %w", err)
	}
	s.log.Debug("Enumerated document elements", zap.Int("count", len(nodes)))
	return s.wrap(nodes), nil
}

// Snapshot serializes the current document.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var out string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capturing document snapshot: %w", err)
	}
	return out, nil
}

func (s *Session) wrap(nodes []*cdpproto.Node) []schemas.ElementHandle {
	out := make([]schemas.ElementHandle, len(nodes))
	for i, n := range nodes {
		out[i] = &element{node: n}
	}
	return out
}

// -- Element handle --

// element wraps one tracked CDP node. Accessor failures (e.g. the node was
// detached by a re-render) surface as errors, which the extractor converts
// into an ExtractionError.
type element struct {
	node *cdpproto.Node
}

func (e *element) TagName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.ToLower(e.node.NodeName), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var out string
	err := chromedp.Run(ctx, chromedp.Text([]cdpproto.NodeID{e.node.NodeID}, &out, chromedp.ByNodeID))
	if err != nil {
		return "", fmt.Errorf("reading text of node %d: %w", e.node.NodeID, err)
	}
	return strings.TrimSpace(out), nil
}

func (e *element) Attributes(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// CDP delivers attributes as a flat name/value pair list.
	attrs := make(map[string]string, len(e.node.Attributes)/2)
	for i := 0; i+1 < len(e.node.Attributes); i += 2 {
		attrs[strings.ToLower(e.node.Attributes[i])] = e.node.Attributes[i+1]
	}
	return attrs, nil
}

func (e *element) BoundingBox(ctx context.Context) (schemas.Point, schemas.Size, error) {
	var pos schemas.Point
	var size schemas.Size
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(box.Content) < 8 {
			return fmt.Errorf("box model for node %d has no content quad", e.node.NodeID)
		}
		// Content quad is [x1,y1, x2,y2, x3,y3, x4,y4], clockwise from the
		// top left.
		pos = schemas.Point{X: box.Content[0], Y: box.Content[1]}
		size = schemas.Size{
			Width:  box.Content[2] - box.Content[0],
			Height: box.Content[5] - box.Content[1],
		}
		return nil
	}))
	if err != nil {
		return schemas.Point{}, schemas.Size{}, fmt.Errorf("reading box model: %w", err)
	}
	return pos, size, nil
}

func (e *element) Parent(ctx context.Context) (schemas.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := e.node.Parent
	for p != nil && p.NodeType != cdpproto.NodeTypeElement {
		p = p.Parent
	}
	if p == nil {
		return nil, nil
	}
	return &element{node: p}, nil
}

func (e *element) SiblingIndex(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	parent := e.node.Parent
	if parent == nil {
		return 1, 1, nil
	}
	sameTag, overall := 0, 0
	for _, sib := range parent.Children {
		if sib.NodeType != cdpproto.NodeTypeElement {
			continue
		}
		overall++
		if sib.NodeName == e.node.NodeName {
			sameTag++
		}
		if sib.NodeID == e.node.NodeID {
			return sameTag, overall, nil
		}
	}
	// The tracked tree can lag behind a mutating page; report the node as
	// detached rather than guessing an index.
	return 0, 0, fmt.Errorf("node %d no longer present under its parent", e.node.NodeID)
}

func (e *element) AssociatedLabel(ctx context.Context) (string, error) {
	attrs, err := e.Attributes(ctx)
	if err != nil {
		return "", err
	}
	id := attrs["id"]
	if id == "" {
		return "", nil
	}
	var out string
	script := fmt.Sprintf(
		`(document.querySelector('label[for=%q]') || {}).textContent || ''`, id)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", fmt.Errorf("querying associated label: %w", err)
	}
	return strings.TrimSpace(out), nil
}

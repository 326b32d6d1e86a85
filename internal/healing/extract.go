// internal/healing/extract.go
package healing

import (
	"context"
	"strconv"
	"strings"

	"github.com/xkilldash9x/relock/api/schemas"
)

// maxAncestorDepth bounds how many ancestor levels are captured for the
// ancestor-chain similarity variant.
const maxAncestorDepth = 3

// attributeAllowList is the fixed set of attributes recorded in a
// fingerprint. Keys are present in the fingerprint only if the attribute
// exists on the element.
var attributeAllowList = []string{
	"id", "class", "name", "type", "value", "href", "src", "placeholder", "data-testid",
}

// Extract reads a durable fingerprint from a live element handle. It is a
// pure function of the DOM snapshot; the only failure mode is a stale or
// detached handle, reported as an ExtractionError so callers can treat it as
// "element vanished" rather than a similarity case.
func Extract(ctx context.Context, h schemas.ElementHandle) (*schemas.Fingerprint, error) {
	tag, err := h.TagName(ctx)
	if err != nil {
		return nil, &schemas.ExtractionError{Reason: "reading tag name", Err: err}
	}

	text, err := h.Text(ctx)
	if err != nil {
		return nil, &schemas.ExtractionError{Reason: "reading text content", Err: err}
	}

	rawAttrs, err := h.Attributes(ctx)
	if err != nil {
		return nil, &schemas.ExtractionError{Reason: "reading attributes", Err: err}
	}
	attrs := make(map[string]string)
	for _, key := range attributeAllowList {
		if v, ok := rawAttrs[key]; ok {
			attrs[key] = v
		}
	}

	pos, size, err := h.BoundingBox(ctx)
	if err != nil {
		return nil, &schemas.ExtractionError{Reason: "reading bounding box", Err: err}
	}

	fp := &schemas.Fingerprint{
		Tag:         strings.ToLower(tag),
		VisibleText: strings.TrimSpace(text),
		Attributes:  attrs,
		Position:    pos,
		Size:        size,
	}

	// Parent text and the ancestor chain are context, not identity. A failure
	// while walking upwards still aborts the extraction: it means the node is
	// detaching underneath us.
	parent, err := h.Parent(ctx)
	if err != nil {
		return nil, &schemas.ExtractionError{Reason: "reading parent", Err: err}
	}
	if parent != nil {
		ptext, err := parent.Text(ctx)
		if err != nil {
			return nil, &schemas.ExtractionError{Reason: "reading parent text", Err: err}
		}
		fp.AncestorText = strings.TrimSpace(ptext)
	}

	if ancestors, err := collectAncestors(ctx, h, pos); err == nil {
		fp.Ancestors = ancestors
	} else {
		return nil, err
	}

	// Label association is best effort; not every element has one.
	if label, err := h.AssociatedLabel(ctx); err == nil {
		fp.LabelText = strings.TrimSpace(label)
	}

	fp.DerivedPaths = derivePaths(ctx, h, fp)
	return fp, nil
}

// collectAncestors walks up to maxAncestorDepth ancestor levels, recording
// tag, identifying attributes and the element's offset relative to each.
func collectAncestors(ctx context.Context, h schemas.ElementHandle, elemPos schemas.Point) ([]schemas.AncestorInfo, error) {
	var out []schemas.AncestorInfo
	current := h
	for depth := 0; depth < maxAncestorDepth; depth++ {
		parent, err := current.Parent(ctx)
		if err != nil {
			return nil, &schemas.ExtractionError{Reason: "walking ancestor chain", Err: err}
		}
		if parent == nil {
			break
		}

		tag, err := parent.TagName(ctx)
		if err != nil {
			return nil, &schemas.ExtractionError{Reason: "reading ancestor tag", Err: err}
		}
		attrs, err := parent.Attributes(ctx)
		if err != nil {
			return nil, &schemas.ExtractionError{Reason: "reading ancestor attributes", Err: err}
		}
		ppos, _, err := parent.BoundingBox(ctx)
		if err != nil {
			return nil, &schemas.ExtractionError{Reason: "reading ancestor bounding box", Err: err}
		}

		out = append(out, schemas.AncestorInfo{
			Tag:     strings.ToLower(tag),
			ID:      attrs["id"],
			Class:   attrs["class"],
			OffsetX: elemPos.X - ppos.X,
			OffsetY: elemPos.Y - ppos.Y,
		})
		current = parent
	}
	return out, nil
}

// derivePaths runs every path-generation strategy against the node. A
// strategy that cannot produce a path for this node contributes no entry; a
// structural walk failure drops only the strategies that need it.
func derivePaths(ctx context.Context, h schemas.ElementHandle, fp *schemas.Fingerprint) map[schemas.Strategy]string {
	paths := make(map[schemas.Strategy]string)

	for _, c := range generateFromFingerprint(fp) {
		// The first candidate per strategy wins; class-based generation can
		// emit one candidate per class token.
		if _, seen := paths[c.Strategy]; !seen {
			paths[c.Strategy] = c.Locator.Value
		}
	}

	if p, err := positionalPath(ctx, h); err == nil && p != "" {
		paths[schemas.StrategyPositional] = p
	}
	if p, err := hierarchicalPath(ctx, h); err == nil && p != "" {
		paths[schemas.StrategyHierarchical] = p
	}
	return paths
}

// positionalPath scopes the element to its parent tag plus the 1-based index
// among same-tag siblings, e.g. //form/input[2].
func positionalPath(ctx context.Context, h schemas.ElementHandle) (string, error) {
	tag, err := h.TagName(ctx)
	if err != nil {
		return "", err
	}
	idx, _, err := h.SiblingIndex(ctx)
	if err != nil {
		return "", err
	}
	parent, err := h.Parent(ctx)
	if err != nil {
		return "", err
	}
	if parent == nil {
		return "", nil
	}
	ptag, err := parent.TagName(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("//")
	sb.WriteString(strings.ToLower(ptag))
	sb.WriteString("/")
	sb.WriteString(strings.ToLower(tag))
	sb.WriteString("[")
	sb.WriteString(strconv.Itoa(idx))
	sb.WriteString("]")
	return sb.String(), nil
}

// hierarchicalPath builds the full ancestor chain of tag[index] segments from
// the document root down to the element.
func hierarchicalPath(ctx context.Context, h schemas.ElementHandle) (string, error) {
	var segments []string
	current := h
	for current != nil {
		tag, err := current.TagName(ctx)
		if err != nil {
			return "", err
		}
		idx, _, err := current.SiblingIndex(ctx)
		if err != nil {
			return "", err
		}
		segments = append(segments, strings.ToLower(tag)+"["+strconv.Itoa(idx)+"]")
		parent, err := current.Parent(ctx)
		if err != nil {
			return "", err
		}
		current = parent
	}

	var sb strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		sb.WriteString("/")
		sb.WriteString(segments[i])
	}
	return sb.String(), nil
}

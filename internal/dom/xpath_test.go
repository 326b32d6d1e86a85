package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// -- Test Setup Helpers --

const xpathFixture = `<html><body>
<form id="login" class="form-inline auth">
  <label for="user">Username</label>
  <input id="user" name="username" type="text">
  <label>Remember me</label>
  <input type="checkbox" name="remember">
  <button id="go" type="submit">Sign in</button>
</form>
<div class="footer">
  <span>Sign in</span>
  <a href="/help">Help &amp; support</a>
</div>
</body></html>`

// evalOn parses the fixture and evaluates the expression.
func evalOn(t *testing.T, fixture, expr string) []*html.Node {
	t.Helper()
	doc, err := ParseString(fixture)
	require.NoError(t, err)
	nodes, err := evalXPath(doc.root, expr)
	require.NoError(t, err, "expression %q must evaluate", expr)
	return nodes
}

func tagsOf(nodes []*html.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Data
	}
	return out
}

// -- Test Cases: Attribute Predicates --

func TestXPath_IDLookup(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//*[@id='user']")
	require.Len(t, nodes, 1)
	assert.Equal(t, "input", nodes[0].Data)
}

func TestXPath_NameLookupOnAnyTag(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//*[@name='remember']")
	require.Len(t, nodes, 1)
	assert.Equal(t, "checkbox", attrValue(nodes[0], "type"))
}

func TestXPath_TagWithAttribute(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//input[@type='text']")
	require.Len(t, nodes, 1)
	assert.Equal(t, "username", attrValue(nodes[0], "name"))
}

func TestXPath_ContainsClass(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//form[contains(@class,'auth')]")
	require.Len(t, nodes, 1)

	assert.Empty(t, evalOn(t, xpathFixture, "//form[contains(@class,'missing')]"))
}

func TestXPath_CombinedConditions(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//input[@id='user' and @type='text']")
	require.Len(t, nodes, 1)

	assert.Empty(t, evalOn(t, xpathFixture, "//input[@id='user' and @type='checkbox']"),
		"all and-joined conditions must hold")
}

func TestXPath_AbsentAttributeNeverMatches(t *testing.T) {
	assert.Empty(t, evalOn(t, xpathFixture, "//*[@data-testid='x']"))
}

// -- Test Cases: text() --

func TestXPath_TextPredicate(t *testing.T) {
	// Both the button and the span carry the same direct text.
	nodes := evalOn(t, xpathFixture, "//*[text()='Sign in']")
	assert.Equal(t, []string{"button", "span"}, tagsOf(nodes))
}

func TestXPath_TextUsesDirectChildrenOnly(t *testing.T) {
	fixture := `<html><body><div><p>inner</p></div></body></html>`
	assert.Empty(t, evalOn(t, fixture, "//div[text()='inner']"),
		"descendant text must not satisfy a text() test on the parent")
	assert.Len(t, evalOn(t, fixture, "//p[text()='inner']"), 1)
}

// -- Test Cases: Positional and Hierarchical Paths --

func TestXPath_ParentScopedPositional(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//form/input[2]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "checkbox", attrValue(nodes[0], "type"),
		"the index counts same-tag siblings only")
}

func TestXPath_AbsoluteHierarchicalPath(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "/html[1]/body[1]/form[1]/input[1]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "user", attrValue(nodes[0], "id"))
}

func TestXPath_IndexBeyondRangeMatchesNothing(t *testing.T) {
	assert.Empty(t, evalOn(t, xpathFixture, "//form/input[7]"))
}

// -- Test Cases: following:: Axis --

func TestXPath_LabelFollowingInput(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//label[@for='user']/following::input[1]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "user", attrValue(nodes[0], "id"),
		"following::input[1] is the first input after the label in document order")
}

func TestXPath_FollowingSkipsPrecedingNodes(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//label[text()='Remember me']/following::input[1]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "checkbox", attrValue(nodes[0], "type"))
}

func TestXPath_FollowingExcludesContextSubtree(t *testing.T) {
	// An input wrapped by the label is a descendant of the context node, not
	// part of its following axis.
	fixture := `<html><body>
<label>Username <input id="inside"></label>
<input id="outside">
</body></html>`

	nodes := evalOn(t, fixture, "//label/following::input[1]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "outside", attrValue(nodes[0], "id"))
}

// -- Test Cases: Document Order and Duplicates --

func TestXPath_DescendantSearchInDocumentOrder(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//input")
	require.Len(t, nodes, 2)
	assert.Equal(t, "text", attrValue(nodes[0], "type"))
	assert.Equal(t, "checkbox", attrValue(nodes[1], "type"))
}

func TestXPath_WildcardEnumeratesAllElements(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//*")
	// html, head, body, form, 2 labels, 2 inputs, button, div, span, a.
	assert.Len(t, nodes, 12)
}

// -- Test Cases: Full Grammar --

func TestXPath_PositionFunction(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//input[position()=1]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "user", attrValue(nodes[0], "id"))
}

func TestXPath_OrPredicate(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//*[@id='user' or @id='go']")
	assert.Equal(t, []string{"input", "button"}, tagsOf(nodes))
}

func TestXPath_AncestorAxis(t *testing.T) {
	nodes := evalOn(t, xpathFixture, "//button/ancestor::form")
	require.Len(t, nodes, 1)
	assert.Equal(t, "login", attrValue(nodes[0], "id"))
}

func TestXPath_NonElementResultsAreDropped(t *testing.T) {
	assert.Empty(t, evalOn(t, xpathFixture, "//button/text()"),
		"text nodes are not addressable element handles")
}

// -- Test Cases: Rejected Syntax --

func TestXPath_RejectsUnsupportedSyntax(t *testing.T) {
	doc, err := ParseString(xpathFixture)
	require.NoError(t, err)

	rejected := []string{
		"",
		"input",
		"ancestor::div",
		"//input[@id='unterminated]",
		"//input[@id='x'",
	}
	for _, expr := range rejected {
		_, err := evalXPath(doc.root, expr)
		assert.Error(t, err, "expression %q must be rejected", expr)
	}
}

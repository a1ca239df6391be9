package vmachine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	Scalar Kind = iota
	Mapping
	Sequence
)

const (
	// textKey holds the character data of an element that also carries
	// attributes or child elements.
	textKey = "#text"
	// attrPrefix marks attribute entries inside a mapping.
	attrPrefix = "@"
)

// Node is one value of a decoded response: a scalar, a mapping of
// namespace-free element names, or a sequence of repeated elements.
//
// Mapping keys keep document order so every walk over a tree is
// deterministic.
type Node struct {
	Kind  Kind
	Text  string
	keys  []string
	index map[string]*Node
	Items []*Node
}

// NewScalar returns a scalar node.
func NewScalar(text string) *Node {
	return &Node{Kind: Scalar, Text: text}
}

// NewMapping returns an empty mapping node.
func NewMapping() *Node {
	return &Node{Kind: Mapping, index: map[string]*Node{}}
}

// Keys returns the mapping keys in document order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != Mapping {
		return nil
	}

	return n.keys
}

// Set stores child under key. A key seen before turns into a sequence so
// repeated elements keep their order.
func (n *Node) Set(key string, child *Node) {
	existing, ok := n.index[key]
	if !ok {
		n.keys = append(n.keys, key)
		n.index[key] = child

		return
	}

	if existing.Kind == Sequence {
		existing.Items = append(existing.Items, child)
		return
	}

	n.index[key] = &Node{Kind: Sequence, Items: []*Node{existing, child}}
}

// Get returns the child stored under key, if n is a mapping.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != Mapping {
		return nil, false
	}

	child, ok := n.index[key]

	return child, ok
}

// Path descends through nested mappings.
func (n *Node) Path(keys ...string) (*Node, bool) {
	cur := n
	for _, k := range keys {
		next, ok := cur.Get(k)
		if !ok {
			return nil, false
		}

		cur = next
	}

	return cur, cur != nil
}

// Value returns the text carried by n: the scalar itself, or the #text entry
// of a mapping. Whitespace is trimmed.
func (n *Node) Value() string {
	if n == nil {
		return ""
	}

	switch n.Kind {
	case Scalar:
		return strings.TrimSpace(n.Text)
	case Mapping:
		if t, ok := n.index[textKey]; ok {
			return strings.TrimSpace(t.Text)
		}
	case Sequence:
		if len(n.Items) > 0 {
			return n.Items[0].Value()
		}
	}

	return ""
}

// String returns the text of the child under key. ok is false when the key
// is missing or carries no text.
func (n *Node) String(key string) (string, bool) {
	child, ok := n.Get(key)
	if !ok {
		return "", false
	}

	v := child.Value()

	return v, v != ""
}

// Decimal parses the child under key. Missing, empty or unparseable values
// read as absent.
func (n *Node) Decimal(key string) decimal.NullDecimal {
	s, ok := n.String(key)
	if !ok {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(d)
}

// Bool reads "true"/"1" as true; anything else, including absence, is false.
func (n *Node) Bool(key string) bool {
	s, _ := n.String(key)

	switch strings.ToLower(s) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// List returns the elements of a sequence, or n itself wrapped in a slice.
func (n *Node) List() []*Node {
	if n == nil {
		return nil
	}

	if n.Kind == Sequence {
		return n.Items
	}

	return []*Node{n}
}

// ErrDecode reports a response body that is not parseable XML.
var ErrDecode = errors.New("vmachine: undecodable response")

// Decode parses raw XML into a tree whose single top-level key is the
// document element's local name. Namespace prefixes are dropped from
// element and attribute names; namespace declarations are skipped.
func Decode(raw []byte) (*Node, error) {
	doc := etree.NewDocument()

	err := doc.ReadFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no document element", ErrDecode)
	}

	tree := NewMapping()
	tree.Set(root.Tag, decodeElement(root))

	return tree, nil
}

func decodeElement(el *etree.Element) *Node {
	var text strings.Builder

	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			text.WriteString(cd.Data)
		}
	}

	children := el.ChildElements()
	attrs := contentAttrs(el)

	if len(children) == 0 && len(attrs) == 0 {
		return NewScalar(text.String())
	}

	n := NewMapping()

	for _, a := range attrs {
		n.Set(attrPrefix+a.Key, NewScalar(a.Value))
	}

	if t := text.String(); strings.TrimSpace(t) != "" {
		n.Set(textKey, NewScalar(t))
	}

	for _, c := range children {
		n.Set(c.Tag, decodeElement(c))
	}

	return n
}

func contentAttrs(el *etree.Element) []etree.Attr {
	out := make([]etree.Attr, 0, len(el.Attr))

	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}

		out = append(out, a)
	}

	return out
}

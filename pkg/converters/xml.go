package converters

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrParse is wrapped by every error returned for malformed XML.
var ErrParse = errors.New("malformed xml")

const (
	AttributesKey = "@attributes"
	TextKey       = "#text"
)

// MaxDepth bounds element nesting. Trees built by Parse are never deeper, so
// the recursive encoders stay within it too.
const MaxDepth = 512

// Attribute is a single element attribute.
type Attribute struct {
	Name  string
	Value string
}

// Node is one element of a parsed document. Attributes and children keep the
// document order of their first occurrence.
type Node struct {
	// Name is the element name; it is not part of the serialized form.
	Name       string
	Attributes []Attribute
	Children   []Child
	Text       string

	hasText bool
	// number of children present when Text was first set
	textAt int
}

// Child is a named entry of a node.
type Child struct {
	Name  string
	Value Value
}

// Value holds either a single node or, once a tag repeats, a sequence of them.
type Value struct {
	nodes []*Node
	many  bool
}

// Single wraps one node.
func Single(n *Node) Value {
	return Value{nodes: []*Node{n}}
}

// Many wraps a sequence of sibling nodes sharing a tag.
func Many(nodes ...*Node) Value {
	return Value{nodes: nodes, many: true}
}

func (v Value) IsMany() bool {
	return v.many
}

// Nodes returns the wrapped nodes in document order.
func (v Value) Nodes() []*Node {
	return v.nodes
}

// Node returns the first wrapped node.
func (v Value) Node() *Node {
	if len(v.nodes) == 0 {
		return nil
	}
	return v.nodes[0]
}

func (v Value) append(n *Node) Value {
	nodes := make([]*Node, len(v.nodes), len(v.nodes)+1)
	copy(nodes, v.nodes)
	return Value{nodes: append(nodes, n), many: true}
}

// NewNode returns an empty element node.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Attr looks up an attribute value.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child looks up the entry stored under name.
func (n *Node) Child(name string) (Value, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c.Value, true
		}
	}
	return Value{}, false
}

// HasText reports whether a non-empty text node was seen.
func (n *Node) HasText() bool {
	return n.hasText
}

// IsEmpty reports whether the node serializes as an empty object.
func (n *Node) IsEmpty() bool {
	return len(n.Attributes) == 0 && len(n.Children) == 0 && !n.HasText()
}

func (n *Node) setAttr(name, value string) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			n.Attributes[i].Value = value
			return
		}
	}
	n.Attributes = append(n.Attributes, Attribute{Name: name, Value: value})
}

func (n *Node) addChild(child *Node) {
	for i := range n.Children {
		if n.Children[i].Name != child.Name {
			continue
		}
		if n.Children[i].Value.IsMany() {
			n.Children[i].Value = n.Children[i].Value.append(child)
		} else {
			n.Children[i].Value = Many(n.Children[i].Value.Node(), child)
		}
		return
	}
	n.Children = append(n.Children, Child{Name: child.Name, Value: Single(child)})
}

func (n *Node) setText(text string) {
	if !n.hasText {
		n.hasText = true
		n.textAt = len(n.Children)
	}
	n.Text = text
}

// ParseXML converts XML into the node tree of its root element.
func ParseXML(data []byte) (*Node, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a whole XML document from r and converts its root element.
// Input that is not well-formed, or nested deeper than MaxDepth, yields an
// error wrapping ErrParse. Tokens are read raw so namespace prefixes are not
// resolved; end tags are matched here.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = true

	var (
		root *Node
		// open elements, innermost last
		stack []*Node
	)
	for {
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrParse, err.Error())
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && root != nil {
				return nil, fmt.Errorf("%w: multiple root elements", ErrParse)
			}
			if len(stack) >= MaxDepth {
				return nil, fmt.Errorf("%w: elements nested deeper than %d levels", ErrParse, MaxDepth)
			}
			node := NewNode(qualifiedName(t.Name))
			for _, attr := range t.Attr {
				node.setAttr(qualifiedName(attr.Name), attr.Value)
			}
			if len(stack) == 0 {
				root = node
			} else {
				stack[len(stack)-1].addChild(node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected closing tag </%s>", ErrParse, name)
			}
			if top := stack[len(stack)-1]; top.Name != name {
				return nil, fmt.Errorf("%w: element <%s> closed by </%s>", ErrParse, top.Name, name)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, fmt.Errorf("%w: text outside of the root element", ErrParse)
				}
				continue
			}
			// last non-empty text node wins
			if text := strings.TrimSpace(string(t)); text != "" {
				stack[len(stack)-1].setText(text)
			}
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unexpected end of document inside <%s>", ErrParse, stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}
	return root, nil
}

// qualifiedName keeps the prefix as written in the source, so <ns:tag> stays "ns:tag".
func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

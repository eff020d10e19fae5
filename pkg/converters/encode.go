package converters

import (
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON writes the node as an object: "@attributes" first, then child
// entries and "#text" in order of first occurrence. A repeated tag becomes an
// array, an empty node becomes {}.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}

	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)

	n.writeJSON(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (n *Node) writeJSON(stream *jsoniter.Stream) {
	stream.WriteObjectStart()
	first := true
	field := func(name string) {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(name)
	}

	if len(n.Attributes) > 0 {
		field(AttributesKey)
		stream.WriteObjectStart()
		for i, a := range n.Attributes {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(a.Name)
			stream.WriteString(a.Value)
		}
		stream.WriteObjectEnd()
	}

	for i, c := range n.Children {
		if n.hasText && n.textAt == i {
			field(TextKey)
			stream.WriteString(n.Text)
		}
		field(c.Name)
		if c.Value.IsMany() {
			stream.WriteArrayStart()
			for j, node := range c.Value.Nodes() {
				if j > 0 {
					stream.WriteMore()
				}
				node.writeJSON(stream)
			}
			stream.WriteArrayEnd()
		} else {
			c.Value.Node().writeJSON(stream)
		}
	}
	if n.hasText && n.textAt >= len(n.Children) {
		field(TextKey)
		stream.WriteString(n.Text)
	}

	stream.WriteObjectEnd()
}

// MarshalYAML returns an ordered mapping with the same shape as MarshalJSON.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.yamlNode(), nil
}

func (n *Node) yamlNode() *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(key string, value *yaml.Node) {
		m.Content = append(m.Content, scalar(key), value)
	}

	if len(n.Attributes) > 0 {
		attrs := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, a := range n.Attributes {
			attrs.Content = append(attrs.Content, scalar(a.Name), scalar(a.Value))
		}
		add(AttributesKey, attrs)
	}

	for i, c := range n.Children {
		if n.hasText && n.textAt == i {
			add(TextKey, scalar(n.Text))
		}
		if c.Value.IsMany() {
			seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, node := range c.Value.Nodes() {
				seq.Content = append(seq.Content, node.yamlNode())
			}
			add(c.Name, seq)
		} else {
			add(c.Name, c.Value.Node().yamlNode())
		}
	}
	if n.hasText && n.textAt >= len(n.Children) {
		add(TextKey, scalar(n.Text))
	}

	if len(m.Content) == 0 {
		m.Style = yaml.FlowStyle
	}
	return m
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

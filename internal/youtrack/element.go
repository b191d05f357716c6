package youtrack

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Element is a generic XML element as returned by the tracker. Text is the concatenation of the
// element's own character data.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr
	Children []*Element
	Text     string

	// content keeps character data and children in document order for re-encoding.
	content []node
}

type node struct {
	text  string
	child *Element
}

func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.XMLName = start.Name
	e.Attrs = start.Attr

	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}

			e.Children = append(e.Children, child)
			e.content = append(e.content, node{child: child})
		case xml.CharData:
			text.Write(t)
			e.content = append(e.content, node{text: string(t)})
		case xml.EndElement:
			e.Text = text.String()
			return nil
		}
	}
}

func parseElement(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var el Element
	if err := dec.Decode(&el); err != nil {
		return nil, fmt.Errorf("can not parse XML: %w", err)
	}

	return &el, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}

	return enc.NewDecoder().Reader(input), nil
}

// Attr returns the value of the attribute with the given local name.
func (e *Element) Attr(name string) string {
	v, _ := e.lookupAttr(name)
	return v
}

// HasAttr reports whether the attribute is present, even if empty.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.lookupAttr(name)
	return ok
}

func (e *Element) lookupAttr(name string) (string, bool) {
	if e == nil {
		return "", false
	}

	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}

	return "", false
}

// Child returns the first direct child with the given tag.
func (e *Element) Child(tag string) *Element {
	if e == nil {
		return nil
	}

	for _, c := range e.Children {
		if c.XMLName.Local == tag {
			return c
		}
	}

	return nil
}

// FindAll returns all descendants with the given tag in document order.
func (e *Element) FindAll(tag string) []*Element {
	var result []*Element
	if e == nil {
		return result
	}

	for _, c := range e.Children {
		if c.XMLName.Local == tag {
			result = append(result, c)
		}
		result = append(result, c.FindAll(tag)...)
	}

	return result
}

// String re-encodes the element as XML.
func (e *Element) String() string {
	if e == nil {
		return ""
	}

	buf := &bytes.Buffer{}
	enc := xml.NewEncoder(buf)
	if err := e.encode(enc); err != nil {
		return ""
	}

	if err := enc.Flush(); err != nil {
		return ""
	}

	return buf.String()
}

func (e *Element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{
		Name: xml.Name{Local: e.XMLName.Local},
		Attr: e.Attrs,
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	content := e.content
	if content == nil {
		// Built in code instead of parsed, so text goes first.
		if e.Text != "" {
			content = append(content, node{text: e.Text})
		}
		for _, c := range e.Children {
			content = append(content, node{child: c})
		}
	}

	for _, n := range content {
		var err error
		if n.child != nil {
			err = n.child.encode(enc)
		} else {
			err = enc.EncodeToken(xml.CharData(n.text))
		}
		if err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

package youtrack

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// FieldType is the value type of a custom field, like "enum" or "user".
type FieldType string

const (
	EnumFieldType       FieldType = "enum"
	BuildFieldType      FieldType = "build"
	OwnedFieldFieldType FieldType = "ownedField"
	StateFieldType      FieldType = "state"
	VersionFieldType    FieldType = "version"
	UserFieldType       FieldType = "user"
)

// NormalizeFieldType strips the cardinality suffix, "enum[*]" becomes "enum".
func NormalizeFieldType(fieldType string) FieldType {
	if i := strings.Index(fieldType, "["); i >= 0 {
		fieldType = fieldType[:i]
	}

	return FieldType(fieldType)
}

type bundleKind struct {
	// path is the resource below /admin/customfield.
	path string
	// listTag is the element name used when listing all bundles of the kind.
	listTag    string
	bundleTag  string
	elementTag string
}

var bundleKinds = map[FieldType]bundleKind{
	EnumFieldType:       {path: "bundle", listTag: "enumFieldBundle", bundleTag: "enumeration", elementTag: "value"},
	BuildFieldType:      {path: "buildBundle", listTag: "buildBundle", bundleTag: "buildBundle", elementTag: "build"},
	OwnedFieldFieldType: {path: "ownedFieldBundle", listTag: "ownedFieldBundle", bundleTag: "ownedFieldBundle", elementTag: "ownedField"},
	StateFieldType:      {path: "stateBundle", listTag: "stateBundle", bundleTag: "stateBundle", elementTag: "state"},
	VersionFieldType:    {path: "versionBundle", listTag: "versionBundle", bundleTag: "versions", elementTag: "version"},
	UserFieldType:       {path: "userBundle", listTag: "userFieldBundle", bundleTag: "userBundle"},
}

func kindOf(fieldType FieldType) (bundleKind, error) {
	kind, ok := bundleKinds[fieldType]
	if !ok {
		return bundleKind{}, fmt.Errorf("no bundles for field type %q", fieldType)
	}

	return kind, nil
}

// Bundle is a named, ordered set of values attached to a custom field. User bundles list users
// and groups instead of elements.
type Bundle struct {
	Type     FieldType
	Name     string
	Elements []*BundleElement
	Users    []string
	Groups   []string
}

// BundleElement is one value of a bundle. Which attributes are used depends on the bundle type.
type BundleElement struct {
	Name        string
	Description string
	ColorIndex  string

	// build
	AssembleDate string
	// ownedField
	Owner string
	// state
	IsResolved bool
	// version
	ReleaseDate string
	Released    bool
	Archived    bool

	Extra Fields
}

// NewElement creates an element for the bundle's type.
func (b *Bundle) NewElement(name string) *BundleElement {
	return &BundleElement{Name: name}
}

func decodeBundle(fieldType FieldType, el *Element) (*Bundle, error) {
	kind, err := kindOf(fieldType)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Type: fieldType,
		Name: el.Attr("name"),
	}

	if fieldType == UserFieldType {
		for _, u := range el.FindAll("user") {
			b.Users = append(b.Users, u.Attr("login"))
		}
		for _, g := range el.FindAll("userGroup") {
			b.Groups = append(b.Groups, g.Attr("name"))
		}

		return b, nil
	}

	for _, e := range el.FindAll(kind.elementTag) {
		b.Elements = append(b.Elements, decodeBundleElement(fieldType, e))
	}

	return b, nil
}

func decodeBundleElement(fieldType FieldType, el *Element) *BundleElement {
	r := newFieldReader(el)
	e := &BundleElement{
		Name:        el.Text,
		Description: r.str("description"),
		ColorIndex:  r.str("colorIndex"),
	}
	if name := r.str("name"); e.Name == "" {
		e.Name = name
	}

	switch fieldType {
	case BuildFieldType:
		e.AssembleDate = r.str("assembleDate")
	case OwnedFieldFieldType:
		e.Owner = r.str("owner")
		if e.Owner == noUser {
			e.Owner = ""
		}
	case StateFieldType:
		e.IsResolved = r.boolean("isResolved")
	case VersionFieldType:
		e.ReleaseDate = r.str("releaseDate")
		e.Released = r.boolean("released")
		e.Archived = r.boolean("archived")
	}
	e.Extra = r.rest()

	return e
}

// attrs returns the non-empty attributes of the element, without its name.
func (e *BundleElement) attrs(fieldType FieldType) Fields {
	f := Fields{}
	for name, values := range e.Extra {
		f.set(name, values...)
	}
	f.setNonEmpty("description", e.Description)
	f.setNonEmpty("colorIndex", e.ColorIndex)

	switch fieldType {
	case BuildFieldType:
		f.setNonEmpty("assembleDate", e.AssembleDate)
	case OwnedFieldFieldType:
		f.setNonEmpty("owner", e.Owner)
	case StateFieldType:
		f.set("isResolved", strconv.FormatBool(e.IsResolved))
	case VersionFieldType:
		f.setNonEmpty("releaseDate", e.ReleaseDate)
		f.set("released", strconv.FormatBool(e.Released))
		f.set("archived", strconv.FormatBool(e.Archived))
	}

	return f
}

// MarshalXML writes the bundle in the format accepted when creating it.
func (b *Bundle) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	kind, err := kindOf(b.Type)
	if err != nil {
		return err
	}

	start := xml.StartElement{
		Name: xml.Name{Local: kind.bundleTag},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: b.Name}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	if b.Type == UserFieldType {
		for _, g := range b.Groups {
			if err := encodeEmpty(enc, "userGroup", "name", g); err != nil {
				return err
			}
		}
		for _, u := range b.Users {
			if err := encodeEmpty(enc, "user", "login", u); err != nil {
				return err
			}
		}
	}

	for _, e := range b.Elements {
		if err := encodeTextElement(enc, kind.elementTag, e.attrs(b.Type), e.Name); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

// encodeEmpty writes an element that only references something by a key attribute.
func encodeEmpty(enc *xml.Encoder, tag, key, value string) error {
	start := xml.StartElement{
		Name: xml.Name{Local: tag},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: key}, Value: value},
			{Name: xml.Name{Local: "url"}, Value: placeholderURL},
		},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	return enc.EncodeToken(start.End())
}

func encodeTextElement(enc *xml.Encoder, tag string, attrs Fields, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: tag}}
	for _, name := range attrs.Names() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: name}, Value: attrs.Get(name)})
	}

	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	if text != "" {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

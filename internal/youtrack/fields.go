package youtrack

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fields maps a field name to its values. Scalar fields hold exactly one value, multi-valued
// fields keep the order of the response.
type Fields map[string][]string

// Get returns the first value of the field.
func (f Fields) Get(name string) string {
	if v := f[name]; len(v) > 0 {
		return v[0]
	}

	return ""
}

// Values returns all values of the field.
func (f Fields) Values(name string) []string {
	return f[name]
}

// Has reports whether the field is present.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (f Fields) set(name string, values ...string) {
	if len(values) == 0 {
		return
	}

	f[name] = values
}

func (f Fields) setNonEmpty(name, value string) {
	if value != "" {
		f[name] = []string{value}
	}
}

// fieldsOf copies the element's attributes and every named child into a field set. A named
// child contributes its <value> descendants or, lacking those, its value attribute.
func fieldsOf(el *Element) Fields {
	f := Fields{}
	if el == nil {
		return f
	}

	for _, a := range el.Attrs {
		f[a.Name.Local] = []string{a.Value}
	}

	for _, c := range el.Children {
		name := c.Attr("name")
		if name == "" {
			continue
		}

		if values := c.FindAll("value"); len(values) > 0 {
			texts := make([]string, len(values))
			for i, v := range values {
				texts[i] = v.Text
			}
			f[name] = texts
			continue
		}

		if c.HasAttr("value") {
			f[name] = []string{c.Attr("value")}
		}
	}

	return f
}

// fieldReader removes known fields from a field set, whatever is left over ends up in the
// record's Extra map.
type fieldReader struct {
	fields Fields
}

func newFieldReader(el *Element) *fieldReader {
	return &fieldReader{fields: fieldsOf(el)}
}

func (r *fieldReader) str(name string) string {
	v := r.fields.Get(name)
	delete(r.fields, name)
	return v
}

func (r *fieldReader) list(name string) []string {
	v := r.fields.Values(name)
	delete(r.fields, name)
	return v
}

func (r *fieldReader) boolean(name string) bool {
	return strings.EqualFold(r.str(name), "true")
}

func (r *fieldReader) rest() Fields {
	return r.fields
}

// ParseMillis converts the tracker's millisecond timestamps.
func ParseMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms), nil
}

// FormatMillis converts a time into the tracker's millisecond timestamp format.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

var existingFieldTypes = map[string]string{
	"numberInProject": "integer",
	"summary":         "string",
	"description":     "string",
	"created":         "date",
	"updated":         "date",
	"updaterName":     "user[1]",
	"resolved":        "date",
	"reporterName":    "user[1]",
	"watcherName":     "user[*]",
	"voterName":       "user[*]",
}

// ExistingFieldTypes returns the types of the fields every issue has.
func ExistingFieldTypes() map[string]string {
	result := make(map[string]string, len(existingFieldTypes))
	for k, v := range existingFieldTypes {
		result[k] = v
	}

	return result
}

// ExistingFields lists the names of the fields every issue has.
func ExistingFields() []string {
	names := []string{"numberInProject", "projectShortName"}
	for name := range existingFieldTypes {
		if name != "numberInProject" {
			names = append(names, name)
		}
	}
	sort.Strings(names[2:])

	return names
}

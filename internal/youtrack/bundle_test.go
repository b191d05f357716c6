package youtrack

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundleRoundTrip(t *testing.T) {
	tests := []struct {
		desc   string
		bundle *Bundle
	}{
		{
			desc: "enum",
			bundle: &Bundle{
				Type: EnumFieldType,
				Name: "Priorities",
				Elements: []*BundleElement{
					{Name: "Critical", Description: "Drop everything", ColorIndex: "5", Extra: Fields{}},
					{Name: "Normal", Extra: Fields{}},
					{Name: "Minor", Extra: Fields{}},
				},
			},
		},
		{
			desc: "build",
			bundle: &Bundle{
				Type: BuildFieldType,
				Name: "Builds",
				Elements: []*BundleElement{
					{Name: "1.0.1", AssembleDate: "1262170200000", Extra: Fields{}},
				},
			},
		},
		{
			desc: "owned field",
			bundle: &Bundle{
				Type: OwnedFieldFieldType,
				Name: "Subsystems",
				Elements: []*BundleElement{
					{Name: "UI", Owner: "jane", Extra: Fields{}},
					{Name: "Backend", Extra: Fields{}},
				},
			},
		},
		{
			desc: "state",
			bundle: &Bundle{
				Type: StateFieldType,
				Name: "States",
				Elements: []*BundleElement{
					{Name: "Open", Extra: Fields{}},
					{Name: "Fixed", IsResolved: true, Extra: Fields{}},
				},
			},
		},
		{
			desc: "version with escaping",
			bundle: &Bundle{
				Type: VersionFieldType,
				Name: `Versions "A" & <B>`,
				Elements: []*BundleElement{
					{Name: "1.0", ReleaseDate: "1262170200000", Released: true, Extra: Fields{}},
					{Name: "2.0 <beta>", Description: `"next" & more`, Archived: true, Extra: Fields{}},
				},
			},
		},
		{
			desc: "unknown attributes are kept",
			bundle: &Bundle{
				Type: EnumFieldType,
				Name: "Types",
				Elements: []*BundleElement{
					{Name: "Bug", Extra: Fields{"localizedName": {"Fehler"}}},
				},
			},
		},
		{
			desc: "user",
			bundle: &Bundle{
				Type:   UserFieldType,
				Name:   "Developers",
				Users:  []string{"jane", "john"},
				Groups: []string{"core team"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			out, err := xml.Marshal(tt.bundle)
			require.NoError(t, err)

			el, err := parseElement(bytes.NewReader(out))
			require.NoError(t, err)

			got, err := decodeBundle(tt.bundle.Type, el)
			require.NoError(t, err)

			assert.Equal(t, tt.bundle, got)
		})
	}
}

func TestBundleMarshal(t *testing.T) {
	bundle := &Bundle{
		Type: StateFieldType,
		Name: "States",
		Elements: []*BundleElement{
			{Name: "Fixed", IsResolved: true, ColorIndex: "3"},
		},
	}

	out, err := xml.Marshal(bundle)
	require.NoError(t, err)

	assert.Equal(t, `<stateBundle name="States"><state colorIndex="3" isResolved="true">Fixed</state></stateBundle>`, string(out))
}

func TestBundleMarshalUnknownType(t *testing.T) {
	_, err := xml.Marshal(&Bundle{Type: "date", Name: "Dates"})
	assert.Error(t, err)
}

func TestDecodeOwnedFieldWithoutOwner(t *testing.T) {
	el := mustParse(t, `<ownedFieldBundle name="Subsystems"><ownedField owner="&lt;no user&gt;">UI</ownedField></ownedFieldBundle>`)

	bundle, err := decodeBundle(OwnedFieldFieldType, el)
	require.NoError(t, err)

	require.Len(t, bundle.Elements, 1)
	assert.Equal(t, "UI", bundle.Elements[0].Name)
	assert.Empty(t, bundle.Elements[0].Owner)
}

func TestUserRoleMarshal(t *testing.T) {
	role := &UserRole{Name: "Developer", Projects: []string{"ABC", "DEF"}}

	out, err := xml.Marshal(role)
	require.NoError(t, err)

	assert.Equal(t, `<userRole name="Developer"><projects><projectRef id="ABC" url="unused"></projectRef><projectRef id="DEF" url="unused"></projectRef></projects></userRole>`, string(out))

	decoded := decodeUserRole(mustParse(t, string(out)))
	assert.Equal(t, role, decoded)
}

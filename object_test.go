package h5iterate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5iterate/internal/core"
)

func TestObjectTypeCodes(t *testing.T) {
	tests := []struct {
		typ  ObjectType
		code int
		name string
	}{
		{ObjectTypeUnknown, -1, "Unknown"},
		{ObjectTypeGroup, 0, "Group"},
		{ObjectTypeDataset, 1, "Dataset"},
		{ObjectTypeNamedDatatype, 2, "NamedDatatype"},
		{ObjectTypeNTypes, 3, "NTypes"},
		{ObjectType(42), 42, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, int(tt.typ))
			require.Equal(t, tt.name, tt.typ.String())
		})
	}
}

func TestObjectTypeFromCore(t *testing.T) {
	require.Equal(t, ObjectTypeGroup, objectTypeFromCore(core.ObjectTypeGroup))
	require.Equal(t, ObjectTypeDataset, objectTypeFromCore(core.ObjectTypeDataset))
	require.Equal(t, ObjectTypeNamedDatatype, objectTypeFromCore(core.ObjectTypeDatatype))
	require.Equal(t, ObjectTypeUnknown, objectTypeFromCore(core.ObjectTypeUnknown))
}

func TestLabel(t *testing.T) {
	require.Equal(t, "Group", Label(ObjectTypeGroup))
	require.Equal(t, "Dataset", Label(ObjectTypeDataset))
	require.Equal(t, "Datatype", Label(ObjectTypeNamedDatatype))
	require.Equal(t, "Unknown", Label(ObjectTypeUnknown))
	require.Equal(t, "Unknown", Label(ObjectTypeNTypes))
}

func TestLinkTypeString(t *testing.T) {
	require.Equal(t, "hard", LinkHard.String())
	require.Equal(t, "soft", LinkSoft.String())
	require.Equal(t, "external", LinkExternal.String())
	require.Equal(t, "user-defined(70)", LinkType(70).String())
}

func TestParseIndexType(t *testing.T) {
	tests := []struct {
		in      string
		want    IndexType
		wantErr bool
	}{
		{in: "name", want: IndexName},
		{in: "", want: IndexName},
		{in: " Name ", want: IndexName},
		{in: "creation", want: IndexCreationOrder},
		{in: "CRT_ORDER", want: IndexCreationOrder},
		{in: "creation_order", want: IndexCreationOrder},
		{in: "size", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndexType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	for _, idx := range []IndexType{IndexName, IndexCreationOrder} {
		got, err := ParseIndexType(idx.String())
		require.NoError(t, err)
		require.Equal(t, idx, got)
	}
}

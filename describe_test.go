package h5iterate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5iterate/internal/h5test"
)

func TestSummarize(t *testing.T) {
	b := h5test.New()
	ds := b.Dataset(4, 7)
	dt := b.NamedDatatype()
	unknown := b.UnknownObject()
	badLayout := b.ObjectHeaderV1(h5test.DataspaceMessage(2), h5test.DatatypeMessage(),
		h5test.Message{Type: h5test.MsgLayout, Data: []byte{9, 1}})
	root := b.CompactGroup(h5test.CompactOptions{},
		h5test.Hard("ds", ds),
		h5test.Hard("dt", dt),
		h5test.Hard("unknown", unknown),
		h5test.Hard("bad", badLayout),
	)
	b.SuperblockV2(2, root)
	file := openImage(t, b)

	tests := []struct {
		name    string
		address uint64
		want    ObjectSummary
		wantErr string
	}{
		{
			name:    "dataset",
			address: ds,
			want:    ObjectSummary{Type: ObjectTypeDataset, Shape: "[4 x 7]", Datatype: "int32", Layout: "contiguous"},
		},
		{
			name:    "named datatype",
			address: dt,
			want:    ObjectSummary{Type: ObjectTypeNamedDatatype, Datatype: "int32"},
		},
		{
			name:    "group",
			address: root,
			want:    ObjectSummary{Type: ObjectTypeGroup},
		},
		{
			name:    "unknown object",
			address: unknown,
			want:    ObjectSummary{Type: ObjectTypeUnknown},
		},
		{
			name:    "undefined address",
			address: UndefinedAddress,
			want:    ObjectSummary{Type: ObjectTypeUnknown},
		},
		{
			name:    "unsupported layout",
			address: badLayout,
			wantErr: "data layout message parse failed",
		},
		{
			name:    "address past end of file",
			address: 1 << 40,
			wantErr: "object header at 0x10000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := file.Summarize(tt.address)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize_IterateExample(t *testing.T) {
	file := openImage(t, h5test.IterateExample())

	members, err := mustRoot(t, file).Members(IndexName)
	require.NoError(t, err)

	got := make(map[string]ObjectSummary, len(members))
	for _, m := range members {
		s, err := file.Summarize(m.Address)
		require.NoError(t, err)
		got[m.Name] = s
	}

	require.Equal(t, "[4 x 7]", got["DS1"].Shape)
	require.Equal(t, got["DS1"], got["L1"])
	require.Equal(t, ObjectSummary{Type: ObjectTypeNamedDatatype, Datatype: "int32"}, got["DT1"])
	require.Equal(t, ObjectSummary{Type: ObjectTypeGroup}, got["G1"])
}

func TestSummarize_Closed(t *testing.T) {
	b := h5test.IterateExample()
	image := b.Bytes()
	file, err := OpenReader(bytes.NewReader(image), int64(len(image)))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = file.Summarize(0)
	require.ErrorIs(t, err, ErrClosed)
}

package h5test

// IterateExample builds the file listed by the iterate demonstration: a
// dataset DS1, a named datatype DT1, a group G1 holding a dataset DS2,
// and a soft link L1 to /DS1, in a version 0 file with symbol table
// groups.
func IterateExample() *Builder {
	b := New()
	ds1 := b.Dataset(4, 7)
	dt1 := b.NamedDatatype()
	g1 := b.SymbolTableGroup(SymbolTableOptions{}, Hard("DS2", b.Dataset(3)))
	root := b.SymbolTableGroup(SymbolTableOptions{},
		Hard("DS1", ds1),
		Hard("DT1", dt1),
		Hard("G1", g1.Header),
		Soft("L1", "/DS1"),
	)
	b.SuperblockV0(root.Header, root.BTree, root.Heap)
	return b
}

// IterateExampleListing is the expected root listing of IterateExample.
const IterateExampleListing = `Objects in root group:
  Dataset: DS1
  Datatype: DT1
  Group: G1
  Dataset: L1
`

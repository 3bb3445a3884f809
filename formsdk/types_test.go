package formsdk

import "testing"

func TestClone_IsDeep(t *testing.T) {
	orig := FormDefinition{Id: 1, Elements: []DataElement{{Id: 1, DataItems: []DataItem{{Id: 1, Label: "a"}}}}}
	cp := orig.Clone()
	cp.Elements[0].Label = "changed"
	cp.Elements[0].DataItems[0].Label = "b"
	if orig.Elements[0].Label != "" || orig.Elements[0].DataItems[0].Label != "a" {
		t.Fatalf("clone shares state with the original: %+v", orig)
	}
}

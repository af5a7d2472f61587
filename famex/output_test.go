package main

import (
	"strings"
	"testing"

	"github.com/evolbio/famex/model"
	"github.com/evolbio/famex/tree"
)

func TestParseFloats(tst *testing.T) {
	vals, err := parseFloats("0.1, 0.2,3")
	if err != nil {
		tst.Fatal("Error parsing floats:", err)
	}
	if len(vals) != 3 || vals[0] != 0.1 || vals[1] != 0.2 || vals[2] != 3 {
		tst.Error("Wrong values:", vals)
	}
	if _, err := parseFloats("0.1,x"); err == nil {
		tst.Error("Expected error for a bad value")
	}
}

func TestASRNode(tst *testing.T) {
	t, err := tree.ParseNewick(strings.NewReader("(A:0.1,B:0.2):0;"))
	if err != nil {
		tst.Fatal("Error parsing tree:", err)
	}
	r := &model.Reconstruction{
		FamilyID: "f1",
		Sizes:    make([]int, t.NNodes()),
	}
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			r.Sizes[node.Id] = 3
		} else {
			r.Sizes[node.Id] = 2
		}
	}
	var sb strings.Builder
	asrNode(&sb, t.Node, r)
	want := "(A<1>_2:0.1,B<2>_2:0.2)<0>_3"
	if sb.String() != want {
		tst.Errorf("Expected %q, got %q", want, sb.String())
	}
}

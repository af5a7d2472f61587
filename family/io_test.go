package family

import (
	"bytes"
	"strings"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "family")
}

const columnTable = "Desc\tFamily ID\tA\tB\tC\tD\n" +
	"\t(null)1\t5\t10\t2\t6\n" +
	"\t(null)2\t5\t10\t2\t6\n" +
	"\t(null)3\t5\t10\t2\t6\n" +
	"\t(null)4\t5\t10\t2\t6\n"

const rowTable = "#A\n#B\n#AB\n#CD\n#C\n#ABCD\n#D\n" +
	"35\t36\t35\t35\t36\t34\t35\t1\n" +
	"98\t96\t97\t97\t98\t98\t98\t2\n"

func TestParseColumns(tst *testing.T) {
	fams, err := ParseTable(strings.NewReader(columnTable))
	if err != nil {
		tst.Fatal("Error parsing table:", err)
	}
	if len(fams) != 4 {
		tst.Fatal("Expected 4 families, got", len(fams))
	}
	if fams[0].ID != "(null)1" {
		tst.Error("Wrong family id:", fams[0].ID)
	}
	for taxon, want := range map[string]int{"A": 5, "B": 10, "C": 2, "D": 6} {
		c, err := fams[0].Count(taxon)
		if err != nil {
			tst.Error("Missing taxon:", err)
		}
		if c != want {
			tst.Errorf("Count(%s)=%d, want %d", taxon, c, want)
		}
	}
	if fams[0].MaxSize() != 10 {
		tst.Error("Wrong max size:", fams[0].MaxSize())
	}
	if fams[0].SizeDifferential() != 8 {
		tst.Error("Wrong size differential:", fams[0].SizeDifferential())
	}
}

func TestParseRows(tst *testing.T) {
	fams, err := ParseTable(strings.NewReader(rowTable))
	if err != nil {
		tst.Fatal("Error parsing table:", err)
	}
	if len(fams) != 2 {
		tst.Fatal("Expected 2 families, got", len(fams))
	}
	if fams[0].ID != "1" || fams[1].ID != "2" {
		tst.Error("Wrong family ids:", fams[0].ID, fams[1].ID)
	}
	c, err := fams[1].Count("ABCD")
	if err != nil {
		tst.Fatal("Missing taxon:", err)
	}
	if c != 98 {
		tst.Error("Expected 98, got", c)
	}
}

func TestParseErrors(tst *testing.T) {
	bad := []string{
		"",
		"Desc\tFamily ID\tA\tB\n",
		"Desc\tFamily ID\tA\tB\n\tf1\t1\n",
		"Desc\tFamily ID\tA\tB\n\tf1\t1\tx\n",
		"Desc\tFamily ID\tA\tB\n\tf1\t-1\t2\n",
		"#A\n#B\n1\t2\t3\tf1\n",
	}
	for _, table := range bad {
		if _, err := ParseTable(strings.NewReader(table)); err == nil {
			tst.Error("Expected parse error for table:", table)
		}
	}
}

func TestBounds(tst *testing.T) {
	fams, err := ParseTable(strings.NewReader(columnTable))
	if err != nil {
		tst.Fatal("Error parsing table:", err)
	}
	famMax, rootMax := Bounds(fams)
	if famMax != 60 {
		tst.Error("Expected family bound 60, got", famMax)
	}
	if rootMax != 30 {
		tst.Error("Expected root bound 30, got", rootMax)
	}
}

func TestRowsRoundTrip(tst *testing.T) {
	fams, err := ParseTable(strings.NewReader(rowTable))
	if err != nil {
		tst.Fatal("Error parsing table:", err)
	}
	var buf bytes.Buffer
	taxa := fams[0].Taxa()
	if err := WriteRows(&buf, taxa, fams); err != nil {
		tst.Fatal("Error writing table:", err)
	}
	if buf.String() != rowTable {
		tst.Errorf("Round trip mismatch:\n%s\nvs\n%s", buf.String(), rowTable)
	}
}

func TestValidateCoverage(tst *testing.T) {
	fams, err := ParseTable(strings.NewReader(columnTable))
	if err != nil {
		tst.Fatal("Error parsing table:", err)
	}
	if err := ValidateCoverage(fams, []string{"A", "B", "C", "D"}); err != nil {
		tst.Error("Unexpected coverage error:", err)
	}
	if err := ValidateCoverage(fams, []string{"A", "E"}); err == nil {
		tst.Error("Expected coverage error for unknown taxon")
	}
}

func TestLargestDifferentials(tst *testing.T) {
	f1 := NewFamily("f1", "")
	f1.SetCount("A", 1)
	f1.SetCount("B", 9)
	f2 := NewFamily("f2", "")
	f2.SetCount("A", 3)
	f2.SetCount("B", 4)
	f3 := NewFamily("f3", "")
	f3.SetCount("A", 2)
	f3.SetCount("B", 22)
	top := LargestDifferentials([]*Family{f1, f2, f3}, 2)
	if len(top) != 2 || top[0].ID != "f3" || top[1].ID != "f1" {
		tst.Error("Wrong differential order:", top)
	}
}

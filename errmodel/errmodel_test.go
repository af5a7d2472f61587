package errmodel

import (
	"math"
	"strings"
	"testing"

	"github.com/op/go-logging"
)

const smallDiff = 1e-9

func init() {
	logging.SetLevel(logging.WARNING, "errmodel")
}

const modelText = "max: 2\n" +
	"cnt: -1 0 1\n" +
	"0 0.0 0.95 0.05\n" +
	"1 0.05 0.9 0.05\n"

func TestParse(tst *testing.T) {
	em, err := Parse(strings.NewReader(modelText))
	if err != nil {
		tst.Fatal("Error parsing error model:", err)
	}
	if em.MaxCount() != 2 {
		tst.Error("Expected max count 2, got", em.MaxCount())
	}
	devs := em.Deviations()
	if len(devs) != 3 || devs[0] != -1 || devs[1] != 0 || devs[2] != 1 {
		tst.Error("Wrong deviations:", devs)
	}

	row := em.Distribution(1)
	want := []float64{0.05, 0.9, 0.05}
	for i := range want {
		if math.Abs(row[i]-want[i]) > smallDiff {
			tst.Error("Wrong row for size 1:", row)
		}
	}

	// size 2 is not listed and inherits row 1
	row = em.Distribution(2)
	for i := range want {
		if math.Abs(row[i]-want[i]) > smallDiff {
			tst.Error("Wrong inherited row for size 2:", row)
		}
	}
}

func TestObservationProb(tst *testing.T) {
	em, err := Parse(strings.NewReader(modelText))
	if err != nil {
		tst.Fatal("Error parsing error model:", err)
	}
	if p := em.ObservationProb(1, 1); math.Abs(p-0.9) > smallDiff {
		tst.Error("Expected 0.9, got", p)
	}
	if p := em.ObservationProb(1, 0); math.Abs(p-0.05) > smallDiff {
		tst.Error("Expected 0.05, got", p)
	}
	if p := em.ObservationProb(1, 3); p != 0 {
		tst.Error("Unsupported deviation must have zero probability, got", p)
	}
}

func TestParseErrors(tst *testing.T) {
	bad := []string{
		"",
		"cnt: -1 0 1\n0 0 0.95 0.05\n",
		"max: 2\n0 0 0.95 0.05\n",
		"max: 2\ncnt: -1 1\n0 0.5 0.5\n",
		"max: 2\ncnt: -1 0 1\n0 0.1 0.85 0.05\n",
		"max: 2\ncnt: -1 0 1\n1 0.5 0.9 0.05\n",
		"max: 2\ncnt: -1 0 1\n1 0.05 0.9 0.05\n1 0.05 0.9 0.05\n",
	}
	for _, text := range bad {
		if _, err := Parse(strings.NewReader(text)); err == nil {
			tst.Error("Expected parse error for:\n", text)
		}
	}
}

func TestSetEpsilon(tst *testing.T) {
	em, err := Parse(strings.NewReader(modelText))
	if err != nil {
		tst.Fatal("Error parsing error model:", err)
	}
	if err := em.SetEpsilon(0.1); err != nil {
		tst.Fatal("Error setting epsilon:", err)
	}
	row := em.Distribution(1)
	want := []float64{0.1, 0.8, 0.1}
	for i := range want {
		if math.Abs(row[i]-want[i]) > smallDiff {
			tst.Error("Wrong row after SetEpsilon:", row)
		}
	}
	// size zero cannot lose a gene
	row = em.Distribution(0)
	want = []float64{0, 0.9, 0.1}
	for i := range want {
		if math.Abs(row[i]-want[i]) > smallDiff {
			tst.Error("Wrong zero row after SetEpsilon:", row)
		}
	}
	if math.Abs(em.Epsilon()-0.2) > smallDiff {
		tst.Error("Expected total off-diagonal mass 0.2, got", em.Epsilon())
	}

	if err := em.SetEpsilon(0.6); err == nil {
		tst.Error("Expected error for epsilon 0.6")
	}
}

func TestCopy(tst *testing.T) {
	em, err := Parse(strings.NewReader(modelText))
	if err != nil {
		tst.Fatal("Error parsing error model:", err)
	}
	cp := em.Copy()
	if err := cp.SetEpsilon(0.2); err != nil {
		tst.Fatal("Error setting epsilon:", err)
	}
	if math.Abs(em.Distribution(1)[1]-0.9) > smallDiff {
		tst.Error("Copy is not independent")
	}
}

func TestUniformError(tst *testing.T) {
	em, err := UniformError(100, 0.05)
	if err != nil {
		tst.Fatal("Error building uniform model:", err)
	}
	if p := em.ObservationProb(50, 51); math.Abs(p-0.05) > smallDiff {
		tst.Error("Expected 0.05, got", p)
	}
	if p := em.ObservationProb(50, 50); math.Abs(p-0.9) > smallDiff {
		tst.Error("Expected 0.9, got", p)
	}
}

func TestWriteRoundTrip(tst *testing.T) {
	em, err := Parse(strings.NewReader(modelText))
	if err != nil {
		tst.Fatal("Error parsing error model:", err)
	}
	var sb strings.Builder
	if err := em.Write(&sb); err != nil {
		tst.Fatal("Error writing error model:", err)
	}
	em2, err := Parse(strings.NewReader(sb.String()))
	if err != nil {
		tst.Fatal("Error re-parsing error model:", err)
	}
	if em2.MaxCount() != em.MaxCount() {
		tst.Error("Round trip changed max count")
	}
	if math.Abs(em2.ObservationProb(1, 2)-0.05) > smallDiff {
		tst.Error("Round trip changed probabilities")
	}
}

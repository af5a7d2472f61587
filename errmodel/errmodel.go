// Package errmodel implements the annotation error model: a
// distribution of observed family sizes around the true size at the
// tips of the tree.
package errmodel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("errmodel")

const sumTolerance = 1e-6

// ErrorModel maps a true family size to a distribution of observed
// sizes expressed as deviations from the true size.
type ErrorModel struct {
	maxCount   int
	deviations []int
	// rows for explicitly listed counts; other counts inherit the
	// closest listed row at or below them
	rows    map[int][]float64
	rowKeys []int
}

// MaxCount returns the largest observable size.
func (em *ErrorModel) MaxCount() int {
	return em.maxCount
}

// Deviations returns the supported deviations from the true size.
func (em *ErrorModel) Deviations() []int {
	return em.deviations
}

// Distribution returns the deviation probability vector for a true
// size.
func (em *ErrorModel) Distribution(count int) []float64 {
	i := sort.SearchInts(em.rowKeys, count)
	if i < len(em.rowKeys) && em.rowKeys[i] == count {
		return em.rows[count]
	}
	if i == 0 {
		return em.rows[em.rowKeys[0]]
	}
	return em.rows[em.rowKeys[i-1]]
}

// ObservationProb returns the probability of observing a size given a
// true size.
func (em *ErrorModel) ObservationProb(trueCount, observed int) float64 {
	dev := observed - trueCount
	for i, d := range em.deviations {
		if d == dev {
			return em.Distribution(trueCount)[i]
		}
	}
	return 0
}

// Epsilon returns the total off-diagonal mass of a generic row.
func (em *ErrorModel) Epsilon() float64 {
	eps := 0.0
	row := em.Distribution(em.maxCount)
	for i, d := range em.deviations {
		if d != 0 {
			eps += row[i]
		}
	}
	return eps
}

// SetEpsilon replaces every row with a uniform error rate: each
// non-zero deviation gets probability eps, impossible deviations get
// zero, the diagonal absorbs the rest.
func (em *ErrorModel) SetEpsilon(eps float64) error {
	nOff := len(em.deviations) - 1
	if eps < 0 || eps*float64(nOff) >= 1 {
		return fmt.Errorf("invalid error rate %v", eps)
	}
	for _, count := range em.rowKeys {
		row := em.rows[count]
		diag := -1
		mass := 0.0
		for i, d := range em.deviations {
			switch {
			case d == 0:
				diag = i
			case count+d < 0:
				row[i] = 0
			default:
				row[i] = eps
				mass += eps
			}
		}
		row[diag] = 1 - mass
	}
	return nil
}

// Copy returns an independent copy of the model.
func (em *ErrorModel) Copy() *ErrorModel {
	n := &ErrorModel{
		maxCount:   em.maxCount,
		deviations: em.deviations,
		rows:       make(map[int][]float64, len(em.rows)),
		rowKeys:    em.rowKeys,
	}
	for k, row := range em.rows {
		r := make([]float64, len(row))
		copy(r, row)
		n.rows[k] = r
	}
	return n
}

// UniformError creates an error model over deviations -1, 0, +1 with
// a given per-deviation error rate.
func UniformError(maxCount int, eps float64) (*ErrorModel, error) {
	em := &ErrorModel{
		maxCount:   maxCount,
		deviations: []int{-1, 0, 1},
		rows: map[int][]float64{
			0: {0, 1, 0},
			1: {0, 1, 0},
		},
		rowKeys: []int{0, 1},
	}
	if err := em.SetEpsilon(eps); err != nil {
		return nil, err
	}
	return em, nil
}

// Parse reads an error model file: a "max: N" line, a "cnt: d0 d1
// ..." deviation line and one row per explicitly modelled size.
func Parse(rd io.Reader) (*ErrorModel, error) {
	em := &ErrorModel{
		maxCount: -1,
		rows:     make(map[int][]float64),
	}
	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		switch {
		case strings.HasPrefix(lower, "max"):
			v, err := parseHeader(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", line, err)
			}
			m, err := strconv.Atoi(v)
			if err != nil || m < 1 {
				return nil, fmt.Errorf("line %d: bad max count %q", line, v)
			}
			em.maxCount = m
		case strings.HasPrefix(lower, "cnt"):
			v, err := parseHeader(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", line, err)
			}
			for _, field := range strings.Fields(v) {
				d, err := strconv.Atoi(field)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad deviation %q", line, field)
				}
				em.deviations = append(em.deviations, d)
			}
		default:
			count, row, err := parseRow(text, len(em.deviations))
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", line, err)
			}
			if _, ok := em.rows[count]; ok {
				return nil, fmt.Errorf("line %d: duplicate row for size %d", line, count)
			}
			em.rows[count] = row
			em.rowKeys = append(em.rowKeys, count)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := em.validate(); err != nil {
		return nil, err
	}
	sort.Ints(em.rowKeys)
	return em, nil
}

func parseHeader(text string) (string, error) {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return "", errors.New("missing colon in header")
	}
	return strings.TrimSpace(text[i+1:]), nil
}

func parseRow(text string, nDev int) (int, []float64, error) {
	fields := strings.Fields(text)
	if nDev == 0 {
		return 0, nil, errors.New("probability row before the cnt header")
	}
	if len(fields) != nDev+1 {
		return 0, nil, fmt.Errorf("expected size and %d probabilities", nDev)
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return 0, nil, fmt.Errorf("bad size %q", fields[0])
	}
	row := make([]float64, nDev)
	for i, f := range fields[1:] {
		p, err := strconv.ParseFloat(f, 64)
		if err != nil || p < 0 || p > 1 {
			return 0, nil, fmt.Errorf("bad probability %q", f)
		}
		row[i] = p
	}
	return count, row, nil
}

func (em *ErrorModel) validate() error {
	if em.maxCount < 0 {
		return errors.New("missing max header")
	}
	if len(em.deviations) == 0 {
		return errors.New("missing cnt header")
	}
	hasZero := false
	for _, d := range em.deviations {
		if d == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return errors.New("deviation 0 must be present")
	}
	if len(em.rows) == 0 {
		return errors.New("no probability rows")
	}
	for count, row := range em.rows {
		sum := 0.0
		for i, p := range row {
			if count+em.deviations[i] < 0 && p > 0 {
				return fmt.Errorf("size %d: impossible deviation %d has non-zero probability",
					count, em.deviations[i])
			}
			sum += p
		}
		if math.Abs(sum-1) > sumTolerance {
			return fmt.Errorf("size %d: probabilities sum to %v", count, sum)
		}
	}
	return nil
}

// Write writes the model in the input file format.
func (em *ErrorModel) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "max: %d\n", em.maxCount)
	fmt.Fprint(bw, "cnt:")
	for _, d := range em.deviations {
		fmt.Fprintf(bw, " %d", d)
	}
	fmt.Fprintln(bw)
	for _, count := range em.rowKeys {
		fmt.Fprintf(bw, "%d", count)
		for _, p := range em.rows[count] {
			fmt.Fprintf(bw, " %g", p)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

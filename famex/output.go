package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/model"
	"github.com/evolbio/famex/tree"
)

// createOutFile creates a file inside the output directory.
func createOutFile(name string) (*os.File, error) {
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(*outDir, name))
}

// writeOutputs writes the results directory: the summary, per-family
// likelihoods, ancestral reconstructions and change tables.
func writeOutputs(base *model.BaseModel, gamma *model.GammaModel,
	recs []*model.Reconstruction, ps []float64,
	familyRates []model.FamilyRate) error {
	name := modelName(base, gamma)

	if err := writeResults(name, base, gamma); err != nil {
		return err
	}
	if err := writeFamilyLks(base, gamma); err != nil {
		return err
	}
	if err := writeASR(name, base.Tree(), recs); err != nil {
		return err
	}
	if err := writeFamilyResults(name, base, gamma, ps); err != nil {
		return err
	}
	if err := writeCladeResults(name, base.Tree(), recs); err != nil {
		return err
	}
	if familyRates != nil {
		if err := writeFamilyRates(familyRates); err != nil {
			return err
		}
	}
	log.Noticef("Results written to %s", *outDir)
	return nil
}

// writeResults writes the results.txt summary.
func writeResults(name string, base *model.BaseModel, gamma *model.GammaModel) error {
	f, err := createOutFile("results.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var lnL float64
	for _, fs := range base.FamilyStats() {
		lnL += fs.LnL
	}
	fmt.Fprintf(w, "Model %s Result: %f\n", name, -lnL)
	fmt.Fprint(w, "Lambda:")
	for _, l := range base.Lambdas() {
		fmt.Fprintf(w, " %g", l)
	}
	fmt.Fprintln(w)
	if base.Epsilon() > 0 {
		fmt.Fprintf(w, "Epsilon: %g\n", base.Epsilon())
	}
	if gamma != nil {
		fmt.Fprintf(w, "Alpha: %g\n", gamma.Alpha())
	}
	return w.Flush()
}

// writeFamilyLks writes per-family log-likelihoods, with per-category
// details in gamma mode.
func writeFamilyLks(base *model.BaseModel, gamma *model.GammaModel) error {
	f, err := createOutFile("family_lks.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	stats := base.FamilyStats()
	if gamma == nil {
		fmt.Fprintln(w, "#FamilyID\tLikelihood\tRootSize")
		for _, fs := range stats {
			fmt.Fprintf(w, "%s\t%f\t%d\n", fs.ID, fs.LnL, fs.RootSize)
		}
		return w.Flush()
	}

	fmt.Fprint(w, "#FamilyID\tLikelihood")
	k := gamma.NCategories()
	for i := 0; i < k; i++ {
		fmt.Fprintf(w, "\tCategory%d lnL\tPosterior%d", i+1, i+1)
	}
	fmt.Fprintln(w, "\tSignificant")
	for _, fs := range stats {
		fmt.Fprintf(w, "%s\t%f", fs.ID, fs.LnL)
		for i := 0; i < k; i++ {
			fmt.Fprintf(w, "\t%f\t%f", fs.CategoryLnL[i], fs.Posterior[i])
		}
		fmt.Fprintf(w, "\t%s\n", yesNo(fs.SignificantCategory()))
	}
	return w.Flush()
}

// writeASR writes ancestral reconstructions as Nexus-style annotated
// Newick: every node carries its id and reconstructed size.
func writeASR(name string, t *tree.Tree, recs []*model.Reconstruction) error {
	f, err := createOutFile(name + "_asr.tre")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "#NEXUS")
	fmt.Fprintln(w, "BEGIN TREES;")
	for _, r := range recs {
		var sb strings.Builder
		asrNode(&sb, t.Node, r)
		fmt.Fprintf(w, "  TREE %s = %s;\n", r.FamilyID, sb.String())
	}
	fmt.Fprintln(w, "END;")
	return w.Flush()
}

func asrNode(sb *strings.Builder, node *tree.Node, r *model.Reconstruction) {
	if !node.IsTerminal() {
		sb.WriteByte('(')
		for i, child := range node.ChildNodes() {
			if i != 0 {
				sb.WriteByte(',')
			}
			asrNode(sb, child, r)
		}
		sb.WriteByte(')')
	}
	fmt.Fprintf(sb, "%s<%d>_%d", node.Name, node.Id, r.Sizes[node.Id])
	if !node.IsRoot() {
		fmt.Fprintf(sb, ":%g", node.BranchLength)
	}
}

// writeFamilyResults writes per-family significance labels.
func writeFamilyResults(name string, base *model.BaseModel, gamma *model.GammaModel,
	ps []float64) error {
	f, err := createOutFile(name + "_family_results.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprint(w, "#FamilyID\tpvalue\tSignificant at 0.05")
	if gamma != nil {
		fmt.Fprint(w, "\tSignificant category")
	}
	fmt.Fprintln(w)
	for i, fs := range base.FamilyStats() {
		p := math.NaN()
		if ps != nil {
			p = ps[i]
		}
		if math.IsNaN(p) {
			fmt.Fprintf(w, "%s\tN/A\tn", fs.ID)
		} else {
			fmt.Fprintf(w, "%s\t%f\t%s", fs.ID, p, yesNo(p < 0.05))
		}
		if gamma != nil {
			fmt.Fprintf(w, "\t%s", yesNo(fs.SignificantCategory()))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// writeCladeResults counts per-clade expansions and contractions over
// all families.
func writeCladeResults(name string, t *tree.Tree, recs []*model.Reconstruction) error {
	f, err := createOutFile(name + "_clade_results.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "#Taxon_ID\tIncrease\tDecrease")
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		inc, dec := 0, 0
		for _, r := range recs {
			switch r.Change(node) {
			case 'i':
				inc++
			case 'd':
				dec++
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", node.CladeName(), inc, dec)
	}
	return w.Flush()
}

// writeFamilyRates writes per-family rate estimates.
func writeFamilyRates(rates []model.FamilyRate) error {
	f, err := createOutFile("family_lambdas.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "#FamilyID\tLambda\tLikelihood")
	for _, r := range rates {
		if r.Skipped {
			fmt.Fprintf(w, "%s\tN/A\tN/A\n", r.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%g\t%f\n", r.ID, r.Lambda, r.LnL)
	}
	return w.Flush()
}

// writeSimulation writes simulated families in the row table shape.
func writeSimulation(t *tree.Tree, fams []*family.Family) error {
	f, err := createOutFile("simulation.txt")
	if err != nil {
		return err
	}
	defer f.Close()

	taxa := make([]string, 0, t.NLeaves())
	for leaf := range t.Terminals() {
		taxa = append(taxa, leaf.Name)
	}
	return family.WriteRows(f, taxa, fams)
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

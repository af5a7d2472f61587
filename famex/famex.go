/*

Famex estimates the rate of gene-family size evolution under a
birth-death model on a rooted species tree, optionally with
gamma-distributed rate variation across families and an annotation
error model at the tips.

The basic usage looks like this:

	famex -t tree.nwk -i families.tsv -o results

This estimates a single lambda by maximum likelihood and writes the
results directory. Common variations:

	famex -t tree.nwk -i families.tsv -k 4
	famex -t tree.nwk -i families.tsv -e errors.txt
	famex -t tree.nwk -y rates.nwk -i families.tsv
	famex -t tree.nwk -f rootdist.txt -l 0.002 -s 1000

To see all the options run:

	famex --help

*/
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/evolbio/famex/checkpoint"
	"github.com/evolbio/famex/dist"
	"github.com/evolbio/famex/errmodel"
	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/model"
	"github.com/evolbio/famex/optimize"
	"github.com/evolbio/famex/prior"
	"github.com/evolbio/famex/sim"
	"github.com/evolbio/famex/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("famex")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("famex", "gene-family size evolution under a birth-death model").Version(version)

	// input
	treeFileName     = app.Flag("tree", "species tree in Newick format").Short('t').String()
	famFileName      = app.Flag("infile", "gene-family counts table").Short('i').String()
	rateTreeFileName = app.Flag("rateidx", "rate-index tree assigning a 1-based lambda index to every branch").Short('y').String()
	errModelFileName = app.Flag("errormodel", "annotation error model file").Short('e').String()
	rootDistFileName = app.Flag("rootdist", "root size distribution file (size<TAB>count lines)").Short('f').String()

	// model parameters
	lambdaStr = app.Flag("lambda", "fixed lambda "+
		"(a comma separated list with a rate-index tree)").Short('l').String()
	multiLambdaStr = app.Flag("multilambda", "fixed lambda values, one per rate index "+
		"(requires a rate-index tree)").Short('m').String()
	fixedEpsilon = app.Flag("epsilon", "fix the per-deviation error rate instead of estimating it").
			Default("-1").Float64()
	gammaCats = app.Flag("gammacats", "number of gamma rate categories (no rate variation by default)").
			Short('k').Default("1").Int()
	alpha = app.Flag("alpha", "fix the gamma shape parameter instead of estimating it").
		Short('a').Default("-1").Float64()
	poisson = app.Flag("poisson", "use a Poisson root prior "+
		"(rate fitted to the data unless --poisson-rate is given)").Short('p').Bool()
	poissonRate = app.Flag("poisson-rate", "fixed rate for the Poisson root prior").
			Default("-1").Float64()

	// analyses
	nSimulate = app.Flag("simulate", "simulate N families from a fixed lambda "+
		"(0: one per root distribution family)").Short('s').Default("-1").Int()
	perFamily = app.Flag("perfamily", "estimate a separate lambda for every family").Short('b').Bool()
	filterRoot = app.Flag("filter", "drop families absent from the root ancestor "+
		"before the analysis").Short('x').Bool()
	pValues = app.Flag("pvalue", "compute Monte-Carlo p-values per family").Bool()
	nSims   = app.Flag("nsims", "null simulations per root size for the p-values").
		Default("1000").Int()
	lrt = app.Flag("lrt", "chi-squared likelihood ratio test over "+
		"two log-likelihoods: lnL0,lnL1,df").Short('r').String()

	// optimizer parameters
	method = app.Flag("method", "optimization method to use "+
		"(fms: downhill simplex, "+
		"lbfgsb: limited-memory Broyden-Fletcher-Goldfarb-Shanno with bounding constraints, "+
		"none: just compute likelihood, no optimization"+
		")").Default("fms").Enum("fms", "lbfgsb", "none")
	strategy = app.Flag("strategy", "downhill simplex strategy "+
		"(standard, perturb, variants, widehome)").Default("standard").
		Enum(optimize.Strategies...)
	iterations = app.Flag("iter", "number of iterations").Default("10000").Int()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()

	// checkpointing
	checkpointFileName = app.Flag("checkpoint", "checkpoint file").String()
	checkpointSeconds  = app.Flag("checkpoint-seconds", "minimum seconds between checkpoints").
				Default("30").Float64()

	// technical
	nThreads = app.Flag("procs", "number of threads to use").Int()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	// input/output
	outDir   = app.Flag("outdir", "output directory").Short('o').Default("results").String()
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// parseFloats parses a comma-separated float list.
func parseFloats(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	res := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %v", f, err)
		}
		res[i] = v
	}
	return res, nil
}

// checkFlags rejects contradictory flag combinations.
func checkFlags() error {
	if *lrt != "" {
		return nil
	}
	if *treeFileName == "" {
		return errors.New("a species tree is required (-t)")
	}
	if *lambdaStr != "" && *multiLambdaStr != "" {
		return errors.New("-l and -m are mutually exclusive")
	}
	if *multiLambdaStr != "" && *rateTreeFileName == "" {
		return errors.New("-m requires a rate-index tree (-y)")
	}
	if *errModelFileName != "" && *fixedEpsilon < 0 && (*lambdaStr != "" || *multiLambdaStr != "") {
		return errors.New("error rate estimation is incompatible with a fixed lambda; fix --epsilon instead")
	}
	if *nSimulate >= 0 {
		if *lambdaStr == "" && *multiLambdaStr == "" {
			return errors.New("simulation requires a fixed lambda (-l or -m)")
		}
		if *rootDistFileName == "" {
			return errors.New("simulation requires a root distribution (-f)")
		}
		return nil
	}
	if *famFileName == "" {
		return errors.New("a gene-family table is required (-i)")
	}
	if *gammaCats > 1 && (*lambdaStr != "" || *multiLambdaStr != "") && *alpha < 0 {
		return errors.New("a fixed lambda with rate variation requires a fixed alpha (-a)")
	}
	return nil
}

// doLRT prints the chi-squared likelihood ratio test p-value for two
// log-likelihoods and the degrees of freedom.
func doLRT(spec string) error {
	vals, err := parseFloats(spec)
	if err != nil || len(vals) != 3 {
		return fmt.Errorf("expected lnL0,lnL1,df, got %q", spec)
	}
	lnL0, lnL1, df := vals[0], vals[1], vals[2]
	stat := 2 * (lnL1 - lnL0)
	p := 1.0
	if stat > 0 {
		p = 1 - dist.CDFChi2(stat, df)
	}
	fmt.Printf("2*(lnL1-lnL0) = %v, df = %v, p-value = %g\n", stat, df, p)
	return nil
}

// readTree parses and validates the species tree, applying rate
// classes from a rate-index tree if given.
func readTree() (*tree.Tree, error) {
	f, err := os.Open(*treeFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := tree.ParseNewick(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing tree: %v", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if *rateTreeFileName != "" {
		rf, err := os.Open(*rateTreeFileName)
		if err != nil {
			return nil, err
		}
		defer rf.Close()
		rt, err := tree.ParseNewick(rf)
		if err != nil {
			return nil, fmt.Errorf("error parsing rate-index tree: %v", err)
		}
		if err := t.SetClassesFromRateTree(rt); err != nil {
			return nil, err
		}
		log.Infof("Rate-index tree defines %d rate classes", t.MaxClass()+1)
	}
	return t, nil
}

// readFamilies parses the gene-family table and checks tree coverage.
func readFamilies(t *tree.Tree) ([]*family.Family, error) {
	f, err := os.Open(*famFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fams, err := family.ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing gene-family table: %v", err)
	}

	taxa := make([]string, 0, t.NLeaves())
	for leaf := range t.Terminals() {
		taxa = append(taxa, leaf.Name)
	}
	if err := family.ValidateCoverage(fams, taxa); err != nil {
		return nil, err
	}
	log.Infof("Read %d families for %d taxa", len(fams), len(taxa))
	return fams, nil
}

// readErrorModel parses the error model file and applies a fixed
// error rate if requested.
func readErrorModel() (*errmodel.ErrorModel, bool, error) {
	if *errModelFileName == "" {
		return nil, false, nil
	}
	f, err := os.Open(*errModelFileName)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	em, err := errmodel.Parse(f)
	if err != nil {
		return nil, false, fmt.Errorf("error parsing error model: %v", err)
	}
	if *fixedEpsilon >= 0 {
		if err := em.SetEpsilon(*fixedEpsilon); err != nil {
			return nil, false, err
		}
		log.Infof("Fixed error rate: %v", *fixedEpsilon)
		return em, false, nil
	}
	return em, true, nil
}

// buildPrior selects the root size prior.
func buildPrior(fams []*family.Family, maxRootSize int) (prior.Prior, error) {
	switch {
	case *poisson && *poissonRate > 0:
		log.Infof("Poisson root prior with rate %v", *poissonRate)
		return prior.NewPoisson(*poissonRate), nil
	case *poisson:
		sizes := make([]int, 0, len(fams)*4)
		for _, fam := range fams {
			for _, taxon := range fam.Taxa() {
				c, err := fam.Count(taxon)
				if err != nil {
					return nil, err
				}
				sizes = append(sizes, c)
			}
		}
		return prior.FitPoisson(sizes)
	case *rootDistFileName != "":
		f, err := os.Open(*rootDistFileName)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rd, err := prior.ParseRootDist(f)
		if err != nil {
			return nil, err
		}
		log.Infof("Empirical root prior: %d families, max size %d", rd.Total(), rd.Max())
		return prior.NewUniformFromDist(rd), nil
	default:
		return prior.NewUniform(maxRootSize), nil
	}
}

// simulate runs the forward simulator and writes the families.
func simulate(rnd *rand.Rand) error {
	t, err := readTree()
	if err != nil {
		return err
	}
	lambdas, err := fixedLambdas(t)
	if err != nil {
		return err
	}
	f, err := os.Open(*rootDistFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	rd, err := prior.ParseRootDist(f)
	if err != nil {
		return err
	}

	em, _, err := readErrorModel()
	if err != nil {
		return err
	}

	// the same slack over the largest root size as in inference
	maxFamilySize := rd.Max() + 50
	if rd.Max()/5 > 50 {
		maxFamilySize = rd.Max() + rd.Max()/5
	}
	s, err := sim.NewSimulator(t, lambdas, maxFamilySize, em, rnd)
	if err != nil {
		return err
	}

	n := *nSimulate
	if n == 0 {
		n = rd.Total()
	}
	fams, err := s.Simulate(rd, n)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return err
	}
	return writeSimulation(t, fams)
}

// fixedLambdas parses the fixed rate values and checks them against
// the tree's rate classes.
func fixedLambdas(t *tree.Tree) ([]float64, error) {
	spec := *lambdaStr
	if *multiLambdaStr != "" {
		spec = *multiLambdaStr
	}
	if spec == "" {
		return nil, nil
	}
	lambdas, err := parseFloats(spec)
	if err != nil {
		return nil, err
	}
	if len(lambdas) != t.MaxClass()+1 {
		return nil, fmt.Errorf("%d lambda values for %d rate classes",
			len(lambdas), t.MaxClass()+1)
	}
	return lambdas, nil
}

// epsilonGrid evaluates a coarse grid of error rates and keeps the
// best as the estimation starting point.
func epsilonGrid(m *model.BaseModel) {
	best, bestEps := math.Inf(-1), -1.0
	for eps := 0.05; eps < 0.5; eps += 0.1 {
		m.SetEpsilon(eps)
		l := m.Likelihood()
		log.Infof("Error rate grid: epsilon=%.2f, lnL=%v", eps, l)
		if l > best {
			best, bestEps = l, eps
		}
	}
	if bestEps >= 0 {
		m.SetEpsilon(bestEps)
		log.Noticef("Starting error rate: %v", bestEps)
	}
}

// getOptimizerFromString returns an optimizer from a string.
func getOptimizerFromString(method string) (optimize.Optimizer, error) {
	switch method {
	case "fms":
		return optimize.NewFMS(optimize.Strategy(*strategy)), nil
	case "lbfgsb":
		return optimize.NewLBFGSB(), nil
	case "none":
		return optimize.NewNone(), nil
	}
	return nil, fmt.Errorf("Unknown optimization method: %s", method)
}

func run(rnd *rand.Rand) (summary *RunSummary, err error) {
	startTime := time.Now()
	summary = &RunSummary{}

	t, err := readTree()
	if err != nil {
		return nil, err
	}
	fams, err := readFamilies(t)
	if err != nil {
		return nil, err
	}

	if *filterRoot {
		kept := fams[:0]
		for _, fam := range fams {
			if model.ExistsAtRoot(t, fam) {
				kept = append(kept, fam)
			} else {
				log.Warningf("Dropping family %s: not present at the root", fam.ID)
			}
		}
		if len(kept) == 0 {
			return nil, errors.New("no families left after the root filter")
		}
		fams = kept
	}

	maxFamilySize, maxRootSize := family.Bounds(fams)
	log.Infof("Size bounds: family %d, root %d", maxFamilySize, maxRootSize)
	summary.NFamilies = len(fams)

	em, estEpsilon, err := readErrorModel()
	if err != nil {
		return nil, err
	}
	rootPrior, err := buildPrior(fams, maxRootSize)
	if err != nil {
		return nil, err
	}
	lambdas, err := fixedLambdas(t)
	if err != nil {
		return nil, err
	}

	var base *model.BaseModel
	var gamma *model.GammaModel
	var optimizable model.Initializable
	if *gammaCats > 1 {
		a := *alpha
		estAlpha := a < 0
		if estAlpha {
			a = 1
		}
		gamma = model.NewGammaModel(t, fams, rootPrior, maxFamilySize, maxRootSize,
			em, estEpsilon, *gammaCats, a, estAlpha)
		base = gamma.BaseModel
		optimizable = gamma
		log.Infof("Using gamma rate variation with %d categories", *gammaCats)
	} else {
		base = model.NewBaseModel(t, fams, rootPrior, maxFamilySize, maxRootSize,
			em, estEpsilon)
		optimizable = base
	}
	summary.Model = modelName(base, gamma)

	fixed := lambdas != nil
	if fixed {
		if err := base.SetLambdas(lambdas); err != nil {
			return nil, err
		}
	} else {
		if err := model.Initialize(optimizable, rnd, fams); err != nil {
			return nil, err
		}
		if estEpsilon {
			epsilonGrid(base)
		}
	}

	methodName := *method
	if fixed {
		// nothing left to optimize over
		methodName = "none"
	}
	opt, err := getOptimizerFromString(methodName)
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s optimization.", methodName)
	if fms, ok := opt.(*optimize.FMS); ok {
		fms.SetRandom(rnd)
	}
	opt.SetOptimizable(optimizable)
	opt.SetReportPeriod(*report)
	opt.WatchSignals(os.Interrupt)

	if *checkpointFileName != "" {
		db, err := checkpoint.Open(*checkpointFileName)
		if err != nil {
			return nil, fmt.Errorf("error opening checkpoint file: %v", err)
		}
		defer db.Close()
		cio := checkpoint.NewCheckpointIO(db, []byte("famex"), *checkpointSeconds)
		opt.SetCheckpointIO(cio)
		final, err := opt.RestoreCheckpoint()
		if err != nil {
			log.Error("Error reading checkpoint:", err)
		} else if final {
			log.Notice("Checkpoint is final, skipping optimization")
			*iterations = 0
		}
	}

	opt.Run(*iterations)
	summary.Optimizer = opt.Summary()

	lnL := base.Likelihood()
	if math.IsInf(lnL, -1) || math.IsNaN(lnL) {
		return nil, errors.New("final parameter values have no likelihood")
	}
	summary.MaxLnL = lnL
	summary.Lambda = base.Lambdas()
	if em != nil {
		summary.Epsilon = base.Epsilon()
	}
	if gamma != nil {
		summary.Alpha = gamma.Alpha()
	}
	log.Noticef("Final lnL: %v", lnL)

	var ps []float64
	if *pValues {
		log.Noticef("Computing p-values (%d simulations per root size)", *nSims)
		ps, err = sim.PValues(base, *nSims, rnd)
		if err != nil {
			return nil, err
		}
	}

	recs, err := base.Reconstruct()
	if err != nil {
		return nil, err
	}

	var familyRates []model.FamilyRate
	if *perFamily {
		log.Notice("Estimating per-family rates")
		familyRates, err = model.EstimatePerFamilyRates(base, rnd, *iterations)
		if err != nil {
			return nil, err
		}
	}

	if err := writeOutputs(base, gamma, recs, ps, familyRates); err != nil {
		return nil, err
	}

	summary.Time = time.Since(startTime).Seconds()
	log.Noticef("Running time: %v", time.Since(startTime))
	return summary, nil
}

// modelName returns the model name for reports.
func modelName(base *model.BaseModel, gamma *model.GammaModel) string {
	if gamma != nil {
		return gamma.Name()
	}
	return base.Name()
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, pkg := range []string{"famex", "model", "optimize", "sim", "prior",
		"bd", "family", "errmodel", "tree", "checkpoint"} {
		logging.SetLevel(level, pkg)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if err := checkFlags(); err != nil {
		log.Fatal(err)
	}

	if *lrt != "" {
		if err := doLRT(*lrt); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	rnd := rand.New(rand.NewSource(*seed))

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *nSimulate >= 0 {
		if err := simulate(rnd); err != nil {
			log.Fatal(err)
		}
		return
	}

	summary, err := run(rnd)
	if err != nil {
		log.Fatal(err)
	}
	call := &CallSummary{
		Version:     version,
		CommandLine: os.Args,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
		Run:         summary,
	}

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(call)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}

package main

import "testing"

func resetFlags() {
	*treeFileName, *famFileName = "tree.nwk", "families.tsv"
	*rateTreeFileName, *errModelFileName, *rootDistFileName = "", "", ""
	*lambdaStr, *multiLambdaStr, *lrt = "", "", ""
	*fixedEpsilon, *alpha = -1, -1
	*gammaCats = 1
	*nSimulate = -1
}

func TestCheckFlags(tst *testing.T) {
	resetFlags()
	if err := checkFlags(); err != nil {
		tst.Error("Unexpected error for a plain run:", err)
	}

	resetFlags()
	*treeFileName = ""
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error without a tree")
	}

	resetFlags()
	*lambdaStr, *multiLambdaStr = "0.1", "0.2"
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error for -l with -m")
	}

	resetFlags()
	*multiLambdaStr = "0.1,0.2"
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error for -m without a rate-index tree")
	}

	// estimating the error rate needs a free lambda
	resetFlags()
	*lambdaStr = "0.1"
	*errModelFileName = "errors.txt"
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error for a fixed lambda with error rate estimation")
	}

	// a fixed lambda with a fixed error rate is a plain evaluation run
	resetFlags()
	*lambdaStr = "0.1"
	*errModelFileName = "errors.txt"
	*fixedEpsilon = 0.05
	if err := checkFlags(); err != nil {
		tst.Error("Fixed lambda with fixed epsilon must be allowed:", err)
	}

	resetFlags()
	*nSimulate = 100
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error for simulation without a fixed lambda")
	}

	resetFlags()
	*gammaCats = 4
	*lambdaStr = "0.1"
	if err := checkFlags(); err == nil {
		tst.Error("Expected an error for a fixed lambda with rate variation and free alpha")
	}
	*alpha = 0.5
	if err := checkFlags(); err != nil {
		tst.Error("Fixed lambda with fixed alpha must be allowed:", err)
	}
}

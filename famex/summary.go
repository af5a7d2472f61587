package main

import "github.com/evolbio/famex/optimize"

// CallSummary stores the full invocation summary for the JSON output.
type CallSummary struct {
	// Version stores famex version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Run is the inference run summary.
	Run *RunSummary `json:"run,omitempty"`
}

// RunSummary stores one inference run summary.
type RunSummary struct {
	// Model is the model name.
	Model string `json:"model"`
	// NFamilies is the number of families analyzed.
	NFamilies int `json:"nFamilies"`
	// MaxLnL is the maximum log likelihood.
	MaxLnL float64 `json:"maxLnL"`
	// Lambda are the fitted (or fixed) rate values.
	Lambda []float64 `json:"lambda"`
	// Epsilon is the total error mass of the error model (if used).
	Epsilon float64 `json:"epsilon,omitempty"`
	// Alpha is the gamma shape parameter (if rate variation is used).
	Alpha float64 `json:"alpha,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// Optimizer is the optimizer run summary.
	Optimizer optimize.Summary `json:"optimizer"`
}

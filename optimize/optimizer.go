// Package optimize implements likelihood maximization: a downhill
// simplex with several search strategies, an L-BFGS-B alternative and
// shared optimizer plumbing.
package optimize

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/op/go-logging"

	"github.com/evolbio/famex/checkpoint"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

// Optimizable is a model whose likelihood can be maximized over its
// float parameters.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

// Optimizer is a likelihood maximizer.
type Optimizer interface {
	SetOptimizable(Optimizable)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	SetCheckpointIO(*checkpoint.CheckpointIO)
	RestoreCheckpoint() (bool, error)
	Run(iterations int)
	GetMaxL() float64
	GetMaxLParameters() []float64
	GetCalls() int
	Summary() Summary
}

// Summary holds optimizer run statistics for the JSON summary.
type Summary struct {
	// MaxLnL is the maximum log-likelihood found.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters are the parameter values at the maximum.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// Iterations is the number of optimizer iterations.
	Iterations int `json:"iterations"`
	// Calls is the number of likelihood evaluations.
	Calls int `json:"likelihoodCalls"`
}

// BaseOptimizer implements the bookkeeping shared by all optimizers.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	l          float64
	maxL       float64
	maxLPar    []float64
	calls      int
	repPeriod  int
	sig        chan os.Signal
	cio        *checkpoint.CheckpointIO
	Quiet      bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// WatchSignals makes the optimizer stop gracefully on a signal.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets reporting period in iterations.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetCheckpointIO enables periodic checkpointing.
func (o *BaseOptimizer) SetCheckpointIO(cio *checkpoint.CheckpointIO) {
	o.cio = cio
}

// SaveCheckpoint saves the current best point if the last checkpoint
// is old enough (always when final).
func (o *BaseOptimizer) SaveCheckpoint(final bool) {
	if o.cio == nil {
		return
	}
	if !final && !o.cio.Old() {
		return
	}
	data := &checkpoint.CheckpointData{
		Parameters: o.parameters.ValueMap(),
		Likelihood: o.maxL,
		Iter:       o.i,
		Final:      final,
	}
	// checkpointing must not interrupt the optimization
	_ = o.cio.Save(data)
}

// RestoreCheckpoint loads parameter values from a checkpoint if
// present. It returns true if the stored state was final.
func (o *BaseOptimizer) RestoreCheckpoint() (bool, error) {
	if o.cio == nil {
		return false, nil
	}
	data, err := o.cio.GetParameters()
	if err != nil || data == nil {
		return false, err
	}
	o.parameters.SetFromMap(data.Parameters)
	return data.Final, nil
}

// PrintHeader prints the report header.
func (o *BaseOptimizer) PrintHeader(parameters FloatParameters) {
	if !o.Quiet {
		fmt.Printf("iteration\tlikelihood\t%s\n", parameters.NamesString())
	}
}

// PrintLine prints one report line.
func (o *BaseOptimizer) PrintLine(parameters FloatParameters, l float64) {
	if !o.Quiet {
		fmt.Printf("%d\t%f\t%s\n", o.i, l, parameters.ValuesString())
	}
}

// PrintFinal prints the optimization result.
func (o *BaseOptimizer) PrintFinal(parameters FloatParameters) {
	if !o.Quiet {
		for _, par := range parameters {
			log.Noticef("%s=%v", par.Name(), par.Get())
		}
	}
}

// GetMaxL returns the maximum likelihood value found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns parameter values at the maximum.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}

// GetCalls returns the number of likelihood evaluations.
func (o *BaseOptimizer) GetCalls() int {
	return o.calls
}

// Summary returns run statistics.
func (o *BaseOptimizer) Summary() Summary {
	m := make(map[string]float64, len(o.parameters))
	names := o.parameters.Names(nil)
	for i, name := range names {
		if o.maxLPar != nil && i < len(o.maxLPar) {
			m[name] = o.maxLPar[i]
		}
	}
	return Summary{
		MaxLnL:         o.maxL,
		MaxLParameters: m,
		Iterations:     o.i,
		Calls:          o.calls,
	}
}

package optimize

import (
	"math"
	"math/rand"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "optimize")
}

// quadModel has a single optimum at (3, -1).
type quadModel struct {
	x, y       float64
	parameters FloatParameters
	calls      int
}

func newQuadModel(x, y float64) *quadModel {
	m := &quadModel{x: x, y: y}
	px := NewBasicFloatParameter(&m.x, "x")
	px.SetMin(-100)
	px.SetMax(100)
	py := NewBasicFloatParameter(&m.y, "y")
	py.SetMin(-100)
	py.SetMax(100)
	m.parameters.Append(px)
	m.parameters.Append(py)
	return m
}

func (m *quadModel) GetFloatParameters() FloatParameters {
	return m.parameters
}

func (m *quadModel) Likelihood() float64 {
	m.calls++
	return -((m.x-3)*(m.x-3) + (m.y+1)*(m.y+1))
}

func (m *quadModel) Copy() Optimizable {
	return newQuadModel(m.x, m.y)
}

func TestFMSQuadratic(tst *testing.T) {
	for _, strategy := range Strategies {
		m := newQuadModel(0.5, 0.5)
		fms := NewFMS(Strategy(strategy))
		fms.Quiet = true
		fms.SetOptimizable(m)
		fms.Run(1000)

		par := fms.GetMaxLParameters()
		tst.Log("strategy=", strategy, ", L=", fms.GetMaxL(), ", par=", par)
		if math.Abs(par[0]-3) > 1e-3 || math.Abs(par[1]+1) > 1e-3 {
			tst.Errorf("Strategy %s: expected (3,-1), got %v", strategy, par)
		}
		if math.Abs(fms.GetMaxL()) > 1e-5 {
			tst.Errorf("Strategy %s: expected likelihood 0, got %v",
				strategy, fms.GetMaxL())
		}
		// model parameters are left at the optimum
		if math.Abs(m.x-3) > 1e-3 || math.Abs(m.y+1) > 1e-3 {
			tst.Errorf("Strategy %s: model not at optimum: %v %v", strategy, m.x, m.y)
		}
	}
}

func TestFMSZeroCoordinate(tst *testing.T) {
	// starting exactly at zero exercises the absolute perturbation
	m := newQuadModel(0, 0)
	fms := NewFMS(StrategyStandard)
	fms.Quiet = true
	fms.SetOptimizable(m)
	fms.Run(1000)
	par := fms.GetMaxLParameters()
	if math.Abs(par[0]-3) > 1e-3 || math.Abs(par[1]+1) > 1e-3 {
		tst.Error("Expected (3,-1), got", par)
	}
}

func TestFMSBounds(tst *testing.T) {
	m := newQuadModel(0.5, 0.5)
	// keep x away from the optimum
	m.parameters[0].SetMax(2)
	fms := NewFMS(StrategyStandard)
	fms.Quiet = true
	fms.SetOptimizable(m)
	fms.Run(1000)
	par := fms.GetMaxLParameters()
	if par[0] > 2 {
		tst.Error("Optimizer left the feasible region:", par)
	}
	if math.Abs(par[0]-2) > 1e-2 {
		tst.Error("Expected x near the bound 2, got", par[0])
	}
}

// restartModel draws random starting points inside the bounds and
// counts the draws.
type restartModel struct {
	*quadModel
	inits int
}

func (m *restartModel) RandomInit(rnd *rand.Rand) {
	m.x = rnd.Float64()*10 - 5
	m.y = rnd.Float64()*10 - 5
	m.inits++
}

func (m *restartModel) Copy() Optimizable {
	return &restartModel{quadModel: m.quadModel.Copy().(*quadModel)}
}

func TestFMSInitialVariantsRestarts(tst *testing.T) {
	m := &restartModel{quadModel: newQuadModel(0.5, 0.5)}
	fms := NewFMS(StrategyInitialVariants)
	fms.Quiet = true
	fms.SetOptimizable(m)
	fms.SetRandom(rand.New(rand.NewSource(1)))
	fms.Run(5000)
	// the first loose pass starts from the supplied point, the rest
	// from fresh draws
	if m.inits != variantAttempts-1 {
		tst.Error("Expected", variantAttempts-1, "restart draws, got", m.inits)
	}
	par := fms.GetMaxLParameters()
	if math.Abs(par[0]-3) > 1e-3 || math.Abs(par[1]+1) > 1e-3 {
		tst.Error("Expected (3,-1), got", par)
	}
}

// bananaModel has a curved valley with the optimum at (1, 1); it
// exercises the contraction and shrink steps heavily.
type bananaModel struct {
	x, y       float64
	parameters FloatParameters
}

func newBananaModel(x, y float64) *bananaModel {
	m := &bananaModel{x: x, y: y}
	px := NewBasicFloatParameter(&m.x, "x")
	px.SetMin(-10)
	px.SetMax(10)
	py := NewBasicFloatParameter(&m.y, "y")
	py.SetMin(-10)
	py.SetMax(10)
	m.parameters.Append(px)
	m.parameters.Append(py)
	return m
}

func (m *bananaModel) GetFloatParameters() FloatParameters {
	return m.parameters
}

func (m *bananaModel) Likelihood() float64 {
	return -((1-m.x)*(1-m.x) + 100*(m.y-m.x*m.x)*(m.y-m.x*m.x))
}

func (m *bananaModel) Copy() Optimizable {
	return newBananaModel(m.x, m.y)
}

func TestFMSBanana(tst *testing.T) {
	m := newBananaModel(-1.2, 1)
	fms := NewFMS(StrategyStandard)
	fms.Quiet = true
	fms.SetOptimizable(m)
	fms.Run(10000)
	par := fms.GetMaxLParameters()
	tst.Log("L=", fms.GetMaxL(), ", par=", par)
	if math.Abs(par[0]-1) > 1e-2 || math.Abs(par[1]-1) > 1e-2 {
		tst.Error("Expected (1,1), got", par)
	}
}

func TestFMSSummary(tst *testing.T) {
	m := newQuadModel(0.5, 0.5)
	fms := NewFMS(StrategyStandard)
	fms.Quiet = true
	fms.SetOptimizable(m)
	fms.Run(1000)
	s := fms.Summary()
	if s.Calls == 0 || s.Iterations == 0 {
		tst.Error("Empty summary:", s)
	}
	if math.Abs(s.MaxLParameters["x"]-3) > 1e-3 {
		tst.Error("Summary parameter mismatch:", s.MaxLParameters)
	}
}

func TestNone(tst *testing.T) {
	m := newQuadModel(1, 1)
	n := NewNone()
	n.Quiet = true
	n.SetOptimizable(m)
	n.Run(0)
	want := -((1.0-3)*(1.0-3) + (1.0+1)*(1.0+1))
	if n.GetMaxL() != want {
		tst.Error("Expected", want, ", got", n.GetMaxL())
	}
}

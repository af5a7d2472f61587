package optimize

import (
	"errors"
	"math"
	"strconv"
)

// FloatParameter is a model parameter adjustable by an optimizer.
type FloatParameter interface {
	Name() string
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetOnChange(func())
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
}

// FloatParameters is a slice of model parameters.
type FloatParameters []FloatParameter

// Append adds a parameter.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns parameter names, reusing the slice if provided.
func (p *FloatParameters) Names(is []string) (s []string) {
	if is == nil {
		s = make([]string, len(*p))
	} else {
		s = is
	}
	for i, par := range *p {
		s[i] = par.Name()
	}
	return
}

// Values returns parameter values, reusing the slice if provided.
func (p *FloatParameters) Values(iv []float64) (v []float64) {
	if iv == nil {
		v = make([]float64, len(*p))
	} else {
		v = iv
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return
}

// ValuesInRange checks that every value is within its parameter range.
func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("Incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

// SetValues sets all parameter values.
func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return errors.New("incorrect number of parameters")
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// SetFromMap sets parameter values from a name-value map, ignoring
// unknown names.
func (p *FloatParameters) SetFromMap(m map[string]float64) {
	for _, par := range *p {
		if v, ok := m[par.Name()]; ok {
			par.Set(v)
		}
	}
}

// ValueMap returns a name-value map of all parameters.
func (p *FloatParameters) ValueMap() map[string]float64 {
	m := make(map[string]float64, len(*p))
	for _, par := range *p {
		m[par.Name()] = par.Get()
	}
	return m
}

// Update copies values from another parameter slice.
func (p *FloatParameters) Update(pSrc *FloatParameters) {
	for i := range *p {
		(*p)[i].Set((*pSrc)[i].Get())
	}
}

// InRange checks that every parameter is within its range.
func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// NamesString returns tab-separated parameter names.
func (p *FloatParameters) NamesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

// ValuesString returns tab-separated parameter values.
func (p *FloatParameters) ValuesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

// BasicFloatParameter is a simple FloatParameter implementation
// wrapping a float64 pointer.
type BasicFloatParameter struct {
	*float64
	name     string
	min      float64
	max      float64
	onChange func()
}

// NewBasicFloatParameter creates a new BasicFloatParameter.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64: par,
		name:    name,
		min:     math.Inf(-1),
		max:     math.Inf(+1),
	}
}

// SetMin sets the lower bound.
func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

// SetMax sets the upper bound.
func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

// SetOnChange sets a callback which is called on every value change.
func (p *BasicFloatParameter) SetOnChange(f func()) {
	p.onChange = f
}

// Get returns the parameter value.
func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

// Set sets the parameter value, notifying the model on change.
func (p *BasicFloatParameter) Set(v float64) {
	if *p.float64 == v {
		// do nothing if value has not changed
		return
	}
	*p.float64 = v
	if p.onChange != nil {
		p.onChange()
	}
}

// GetMin returns the lower bound.
func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

// GetMax returns the upper bound.
func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

// ValueInRange checks if a value is within the parameter range.
func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

// InRange checks if the current value is within the parameter range.
func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

// Name returns the parameter name.
func (p *BasicFloatParameter) Name() string {
	return p.name
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}

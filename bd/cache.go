package bd

import (
	"fmt"
	"runtime"
	"sync"
)

type cacheKey struct {
	t      float64
	lambda float64
}

// MatrixCache holds transition matrices keyed by branch length and
// effective rate. After Precalculate the cache is read-only and safe
// for concurrent lookups.
type MatrixCache struct {
	calc     *Calculator
	matrices map[cacheKey]*Matrix
}

// NewMatrixCache creates an empty cache for family sizes 0..maxSize.
func NewMatrixCache(maxSize int) *MatrixCache {
	return &MatrixCache{
		calc:     NewCalculator(maxSize),
		matrices: make(map[cacheKey]*Matrix),
	}
}

// Calculator returns the underlying probability calculator.
func (mc *MatrixCache) Calculator() *Calculator {
	return mc.calc
}

// Precalculate computes matrices for the Cartesian product of rates
// and branch lengths, spreading the work over all CPUs.
func (mc *MatrixCache) Precalculate(lambdas, lengths []float64) {
	type job struct {
		key cacheKey
		m   *Matrix
	}
	jobs := make([]job, 0, len(lambdas)*len(lengths))
	for _, l := range lambdas {
		for _, t := range lengths {
			key := cacheKey{t: t, lambda: l}
			if _, ok := mc.matrices[key]; ok {
				continue
			}
			jobs = append(jobs, job{key: key})
		}
	}

	nWorkers := runtime.GOMAXPROCS(0)
	tasks := make(chan int, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				jobs[i].m = mc.calc.NewMatrix(jobs[i].key.lambda, jobs[i].key.t)
			}
		}()
	}
	for i := range jobs {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	for _, j := range jobs {
		mc.matrices[j.key] = j.m
	}
	log.Debugf("matrix cache: %d matrices", len(mc.matrices))
}

// Get returns the matrix for a rate and branch length. Asking for a
// matrix which was not precalculated is a programming error.
func (mc *MatrixCache) Get(lambda, t float64) *Matrix {
	m, ok := mc.matrices[cacheKey{t: t, lambda: lambda}]
	if !ok {
		panic(fmt.Sprintf("no cached matrix for lambda=%v, t=%v", lambda, t))
	}
	return m
}

// Len returns the number of cached matrices.
func (mc *MatrixCache) Len() int {
	return len(mc.matrices)
}

package chain

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/lgerste/chainopt/pkg/props"
)

// Generator produces random Jacobian chains from configured ranges. It is an
// iterator over (length, batch) pairs: every configured length yields Amount
// chains with contiguous dimensions (n_k == m_{k-1}).
type Generator struct {
	Lengths            []int
	Amount             int
	SizeRange          [2]int
	DAGSizeRange       [2]int
	TangentFactorRange [2]float64
	AdjointFactorRange [2]float64
	DensityRange       [2]float64
	Seed               uint64

	seedSet   bool
	rng       *rand.Rand
	batchIdx  int
	lengthIdx int
}

// NewGenerator returns a generator with the defaults of an unconfigured run:
// a single chain of length 1 with unit dimensions.
func NewGenerator() *Generator {
	return &Generator{
		Lengths:            []int{1},
		Amount:             1,
		SizeRange:          [2]int{1, 1},
		DAGSizeRange:       [2]int{1, 1},
		TangentFactorRange: [2]float64{1, 1},
		AdjointFactorRange: [2]float64{1, 1},
		DensityRange:       [2]float64{0, 1},
	}
}

// Register adds the generator's configuration keys to the registry.
func (g *Generator) Register(p *props.Properties) {
	p.IntList(&g.Lengths, "length", "Lengths of the Jacobian chains.")
	p.Int(&g.Amount, "amount", "Amount of random Jacobian chains (per length).")
	p.IntPair(&g.SizeRange, "size_range", "Range of the Jacobian dimensions.")
	p.IntPair(&g.DAGSizeRange, "dag_size_range", "Range of the amount of edges in the DAG of a single function F.")
	p.FloatPair(&g.TangentFactorRange, "tangent_factor_range", "Range of the tangent runtime factor.")
	p.FloatPair(&g.AdjointFactorRange, "adjoint_factor_range", "Range of the adjoint runtime factor.")
	p.FloatPair(&g.DensityRange, "density_range", "Range of density percentages of the Jacobians. Used to calculate number of non-zero entries and bandwidth.")
	p.Register("seed", "Seed for the random number generator.", 1, func(fields []string) error {
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return err
		}
		g.Seed = v
		g.seedSet = true
		return nil
	}, func() string { return strconv.FormatUint(g.Seed, 10) })
}

// InitRNG seeds the internal RNG. A seed counts as configured when it came
// from the seed key or when Seed is non-zero; without one a seed is drawn
// from OS entropy (the auto-seeded global source).
func (g *Generator) InitRNG() {
	if !g.seedSet && g.Seed == 0 {
		g.Seed = rand.Uint64()
	}
	g.rng = rand.New(rand.NewPCG(g.Seed, g.Seed))
	g.batchIdx = 0
	g.lengthIdx = 0
}

// Next fills chain with the next random Jacobian chain and returns true, or
// returns false once every configured (length, batch) pair was produced.
func (g *Generator) Next(c *JacobianChain) bool {
	if g.rng == nil {
		g.InitRNG()
	}
	if g.lengthIdx >= len(g.Lengths) {
		return false
	}

	length := g.Lengths[g.lengthIdx]
	c.Elementals = make([]Jacobian, 0, length)
	c.subChains = nil
	c.built = nil
	c.eager.Store(false)
	c.OptimizedCosts = nil
	c.ID = g.batchIdx

	c.Elementals = append(c.Elementals, g.randomJacobian(0, 0))
	for k := 1; k < length; k++ {
		c.Elementals = append(c.Elementals, g.randomJacobian(k, c.Elementals[k-1].M))
	}

	if g.batchIdx++; g.batchIdx >= g.Amount {
		g.batchIdx = 0
		g.lengthIdx++
	}
	return true
}

// randomJacobian draws the k-th elemental. n is forced to the predecessor's
// output dimension for k >= 1 so the chain stays contiguous.
func (g *Generator) randomJacobian(k, n int) Jacobian {
	if n == 0 {
		n = g.intIn(g.SizeRange)
	}
	m := g.intIn(g.SizeRange)

	jac := NewElemental(k, n, m,
		g.intIn(g.DAGSizeRange),
		g.floatIn(g.TangentFactorRange),
		g.floatIn(g.AdjointFactorRange))

	jac.KL = int(math.Round(float64(m-1) * g.floatIn(g.DensityRange)))
	jac.KU = int(math.Round(float64(n-1) * g.floatIn(g.DensityRange)))

	maxMN := max(m, n)
	jac.NonZeroElements = maxMN + int(math.Round(float64(maxMN-m*n)*g.floatIn(g.DensityRange)))

	return jac
}

func (g *Generator) intIn(bounds [2]int) int {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + g.rng.IntN(bounds[1]-bounds[0]+1)
}

func (g *Generator) floatIn(bounds [2]float64) float64 {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + g.rng.Float64()*(bounds[1]-bounds[0])
}

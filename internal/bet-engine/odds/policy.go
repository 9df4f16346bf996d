package odds

import (
	"math/rand/v2"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

// Limites de odds aceitos pela plataforma
const (
	DefaultBase       = 1.95
	DefaultVolatility = 0.10
	MinOdds           = 1.1
	MaxOdds           = 3.0
)

// Policy calcula a odd oferecida: Base ajustada por um fator aleatório em
// [1-Volatility, 1+Volatility], limitada a [Min, Max].
// A direção ainda não influencia o preço.
type Policy struct {
	Base       float64
	Volatility float64
	Min        float64
	Max        float64
	Rand       func() float64 // [0,1); nil usa math/rand/v2
}

func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Volatility: DefaultVolatility, Min: MinOdds, Max: MaxOdds}
}

func (p Policy) Odds(asset model.Asset, direction model.Direction) float64 {
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	o := p.Base * (1 - p.Volatility + 2*p.Volatility*r())
	return min(max(o, p.Min), p.Max)
}

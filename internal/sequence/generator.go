// internal/sequence/generator.go
//
// Fresh rounds: every catalog item with a new random value, plus shuffling.

package sequence

import "math/rand/v2"

// MaxValue is the exclusive upper bound of Item.Value.
const MaxValue = 100

// Generator produces fresh item sequences from a catalog.
// It is not safe for concurrent use; each game owns its own.
type Generator struct {
	catalog *Catalog
	rng     *rand.Rand
}

// NewGenerator builds a generator. A nil rng gets a randomly seeded PCG source.
func NewGenerator(c *Catalog, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{catalog: c, rng: rng}
}

// Generate returns every catalog item, in catalog order, each with a new value.
func (g *Generator) Generate() []Item {
	out := make([]Item, len(g.catalog.Items))
	for i, t := range g.catalog.Items {
		out[i] = Item{ColorTag: t.ColorTag, Name: t.Name, Value: g.rng.IntN(MaxValue)}
	}
	return out
}

// Shuffled returns a Fisher–Yates permutation of a copy of items.
func (g *Generator) Shuffled(items []Item) []Item {
	out := append([]Item(nil), items...)
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

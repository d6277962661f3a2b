// internal/sequence/types.go
//
// Core type definitions for sequence generation.
// Defines:
//   - Item: one colored/labeled token with its per-round random value.
//   - Template: a catalog entry (the item minus its value).
//   - Difficulty / Level: the difficulty keys and what each one means.

package sequence

// Item is a single token shown to the player.
// Identity is Name; Value is re-rolled every time a sequence is generated.
type Item struct {
	ColorTag string `json:"color"` // presentation tag, e.g. "text-red"
	Name     string `json:"name"`  // unique identifier within the catalog
	Value    int    `json:"nbr"`   // random 0..99
}

// Equal reports whether two items match on name, value and color tag.
func (it Item) Equal(o Item) bool {
	return it.Name == o.Name && it.Value == o.Value && it.ColorTag == o.ColorTag
}

// Template is an entry of the fixed catalog.
type Template struct {
	ColorTag string `yaml:"color" json:"color"`
	Name     string `yaml:"name" json:"name"`
	Label    string `yaml:"label" json:"label"`
}

// Difficulty is a key into the difficulty table.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Level describes one difficulty.
type Level struct {
	DisplayName    string `yaml:"name" json:"name"`
	SequenceLength int    `yaml:"sequenceLength" json:"sequenceLength"`
	TimerSeconds   int    `yaml:"timerSeconds" json:"timerSeconds"`
}

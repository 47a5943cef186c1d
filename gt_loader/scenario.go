package gtloader

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/golang/geo/r3"
)

// Plant is one plant placed in the scenario. Its fruits are loaded from the
// object source under Model.
type Plant struct {
	Name      string     `toml:"name"`
	Model     string     `toml:"model"`
	Position  [3]float64 `toml:"position"`
	NumFruits int        `toml:"num_fruits"`
}

// Point returns the plant position in meters.
func (p Plant) Point() r3.Vector {
	return r3.Vector{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]}
}

// Scenario is a named set of plants.
type Scenario struct {
	Name   string  `toml:"name"`
	Plants []Plant `toml:"plant"`
}

// LoadScenario reads a scenario TOML file.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return ParseScenario(f)
}

// ParseScenario decodes and validates a scenario from TOML.
func ParseScenario(r io.Reader) (Scenario, error) {
	var s Scenario
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Validate checks that plant names are unique and every plant has a model.
func (s Scenario) Validate() error {
	seen := make(map[string]bool, len(s.Plants))
	for i, p := range s.Plants {
		if p.Name == "" {
			return fmt.Errorf("plant %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate plant name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Model == "" {
			return fmt.Errorf("plant %q has no model", p.Name)
		}
		if p.NumFruits < 0 {
			return fmt.Errorf("plant %q: negative fruit count %d", p.Name, p.NumFruits)
		}
	}
	return nil
}

// Plant returns the plant with the given name.
func (s Scenario) Plant(name string) (Plant, error) {
	for _, p := range s.Plants {
		if p.Name == name {
			return p, nil
		}
	}
	return Plant{}, fmt.Errorf("plant %q: %w", name, ErrNotFound)
}

// WithPositions returns a copy of s with plant positions replaced in order.
func (s Scenario) WithPositions(positions []r3.Vector) (Scenario, error) {
	if len(positions) != len(s.Plants) {
		return Scenario{}, fmt.Errorf("got %d positions for %d plants", len(positions), len(s.Plants))
	}
	out := Scenario{Name: s.Name, Plants: make([]Plant, len(s.Plants))}
	copy(out.Plants, s.Plants)
	for i, p := range positions {
		out.Plants[i].Position = [3]float64{p.X, p.Y, p.Z}
	}
	return out, nil
}

// TotalFruits returns the number of objects the scenario expects.
func (s Scenario) TotalFruits() int {
	n := 0
	for _, p := range s.Plants {
		n += p.NumFruits
	}
	return n
}

package model

// Groups maps Positions to the diagnostics anchored there, remembering the
// order in which positions were first seen. Keys compare by value.
type Groups struct {
	order []Position
	items map[Position][]Diagnostic
}

// NewGroups returns an empty Groups.
func NewGroups() *Groups {
	return &Groups{items: make(map[Position][]Diagnostic)}
}

// Add appends d to the list at p, creating the group if needed.
func (g *Groups) Add(p Position, d Diagnostic) {
	if _, ok := g.items[p]; !ok {
		g.order = append(g.order, p)
	}
	g.items[p] = append(g.items[p], d)
}

// Set replaces the list at p. An existing position keeps its place in the order.
func (g *Groups) Set(p Position, ds []Diagnostic) {
	if _, ok := g.items[p]; !ok {
		g.order = append(g.order, p)
	}
	g.items[p] = ds
}

// Get returns the diagnostics at p.
func (g *Groups) Get(p Position) []Diagnostic {
	return g.items[p]
}

// Positions returns positions in discovery order.
func (g *Groups) Positions() []Position {
	out := make([]Position, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of positions.
func (g *Groups) Len() int {
	return len(g.order)
}

// Count returns the total number of diagnostics across all positions.
func (g *Groups) Count() int {
	n := 0
	for _, p := range g.order {
		n += len(g.items[p])
	}
	return n
}

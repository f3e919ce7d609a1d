package vatblend

import (
	"fmt"
	"sort"
	"strings"
)

// A Product is a node of the product graph: an image rendered from
// derivatives and from other products
type Product struct {
	// ID identifies the product in requests
	ID string
	// Name is used to build output file names
	Name string
	Deps []string
	Keys []Key
	// Float and Byte select the persisted outputs. A product that is both
	// stored as float and as 8-bit has its 8-bit version stored next to the
	// float one with an _8bit suffix.
	Float     bool
	Byte      bool
	ByteRange Range
	Render    func(a *Arena) (Image, error)
}

// Outputs reports whether the product is persisted when requested
func (p *Product) Outputs() bool {
	return p.Float || p.Byte
}

// A Graph holds products indexed by a case insensitive ID
type Graph struct {
	products map[string]*Product
}

func NewGraph() *Graph {
	return &Graph{products: map[string]*Product{}}
}

// Add registers p. IDs must be unique.
func (g *Graph) Add(p *Product) error {
	id := strings.ToLower(p.ID)
	if id == "" || p.Render == nil {
		return invalidArgumentf("product %q must have an ID and a render function", p.ID)
	}
	if _, ok := g.products[id]; ok {
		return invalidArgumentf("product %s registered twice", p.ID)
	}
	g.products[id] = p
	return nil
}

func (g *Graph) Product(id string) (*Product, error) {
	p, ok := g.products[strings.ToLower(id)]
	if !ok {
		return nil, invalidArgumentf("unknown product %q", id)
	}
	return p, nil
}

// IDs returns the sorted IDs of all registered products
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.products))
	for _, p := range g.products {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

// A Plan is the evaluation order of a request: every product appears after
// its dependencies
type Plan struct {
	Order []*Product
	// Requested are the products explicitly asked for, in request order
	Requested []*Product
	// Keys are the derivatives needed by the whole plan, deduplicated
	Keys []Key
}

// Plan resolves the dependencies of the requested products
func (g *Graph) Plan(ids ...string) (Plan, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[*Product]int{}
	plan := Plan{}
	seenKey := map[Key]bool{}
	var visit func(p *Product, path []string) error
	visit = func(p *Product, path []string) error {
		switch state[p] {
		case done:
			return nil
		case visiting:
			return invalidArgumentf("product cycle: %s -> %s", strings.Join(path, " -> "), p.ID)
		}
		state[p] = visiting
		for _, dep := range p.Deps {
			dp, err := g.Product(dep)
			if err != nil {
				return fmt.Errorf("dependency of %s: %w", p.ID, err)
			}
			if err := visit(dp, append(path[:len(path):len(path)], p.ID)); err != nil {
				return err
			}
		}
		state[p] = done
		for _, k := range p.Keys {
			if !seenKey[k] {
				seenKey[k] = true
				plan.Keys = append(plan.Keys, k)
			}
		}
		plan.Order = append(plan.Order, p)
		return nil
	}
	requested := map[*Product]bool{}
	for _, id := range ids {
		p, err := g.Product(id)
		if err != nil {
			return Plan{}, err
		}
		if err := visit(p, nil); err != nil {
			return Plan{}, err
		}
		if !requested[p] {
			requested[p] = true
			plan.Requested = append(plan.Requested, p)
		}
	}
	return plan, nil
}

// An Arena memoizes rendered products for one unit of work
type Arena struct {
	graph       *Graph
	derivatives Derivatives
	rendered    map[*Product]Image
}

func NewArena(g *Graph, d Derivatives) *Arena {
	return &Arena{graph: g, derivatives: d, rendered: map[*Product]Image{}}
}

// Derivative returns a derivative computed for this unit of work
func (a *Arena) Derivative(k Key) (Image, error) {
	img, ok := a.derivatives.Get(k)
	if !ok {
		return Image{}, invalidArgumentf("derivative %s was not computed", k)
	}
	return img, nil
}

func (a *Arena) Derivatives() Derivatives {
	return a.derivatives
}

// Get renders the product, or returns its memoized image. Dependencies are
// rendered on demand; Plan guarantees they are acyclic.
func (a *Arena) Get(id string) (Image, error) {
	p, err := a.graph.Product(id)
	if err != nil {
		return Image{}, err
	}
	if img, ok := a.rendered[p]; ok {
		return img, nil
	}
	img, err := p.Render(a)
	if err != nil {
		return Image{}, fmt.Errorf("render %s: %w", p.ID, err)
	}
	a.rendered[p] = img
	return img, nil
}

// Evaluate renders every product of the plan in order
func (a *Arena) Evaluate(plan Plan) error {
	for _, p := range plan.Order {
		if _, err := a.Get(p.ID); err != nil {
			return err
		}
	}
	return nil
}

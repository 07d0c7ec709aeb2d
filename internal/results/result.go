package results

// Global is one scalar result of a run, e.g. the average cell voltage.
type Global struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// Globals is the ordered list of global results of a run.
type Globals []Global

// Lookup returns the named global result.
func (g Globals) Lookup(name string) (Global, bool) {
	for _, v := range g {
		if v.Name == name {
			return v, true
		}
	}
	return Global{}, false
}

// Result is the (global, local) pair produced by one simulation run.
type Result struct {
	Global Globals
	Local  *Tree
}

// Package action defines the catalog that maps numeric action codes used by
// game clients onto the upper-case labels used by models and reference sets.
package action

import (
	"sort"
	"strings"
)

// Action is one catalog entry.
type Action struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
	Name  string `json:"name,omitempty"`
}

// Defaults is the catalog shipped with the service. Code 3 and 8 are retired.
var Defaults = []Action{
	{Code: 1, Label: "CLAP", Name: "손 박수"},
	{Code: 2, Label: "ELBOW", Name: "팔 치기"},
	{Code: 4, Label: "STRETCH", Name: "팔 뻗기"},
	{Code: 5, Label: "TILT", Name: "기우뚱"},
	{Code: 6, Label: "EXIT", Name: "비상구"},
	{Code: 7, Label: "UNDERARM", Name: "겨드랑이박수"},
	{Code: 9, Label: "STAY", Name: "가만히 있음"},
}

// Catalog is an immutable, bidirectional code/label table.
type Catalog struct {
	actions []Action
	byCode  map[int]Action
	byLabel map[string]Action
}

// NewCatalog indexes actions. Labels are upper-cased; later entries win on
// duplicate codes or labels.
func NewCatalog(actions []Action) *Catalog {
	c := &Catalog{
		byCode:  make(map[int]Action, len(actions)),
		byLabel: make(map[string]Action, len(actions)),
	}
	for _, a := range actions {
		a.Label = Normalize(a.Label)
		if a.Label == "" {
			continue
		}
		if prev, ok := c.byCode[a.Code]; ok {
			delete(c.byLabel, prev.Label)
		}
		if prev, ok := c.byLabel[a.Label]; ok {
			delete(c.byCode, prev.Code)
		}
		c.byCode[a.Code] = a
		c.byLabel[a.Label] = a
	}
	for _, a := range c.byCode {
		c.actions = append(c.actions, a)
	}
	sort.Slice(c.actions, func(i, j int) bool { return c.actions[i].Code < c.actions[j].Code })
	return c
}

// Default returns a catalog of Defaults.
func Default() *Catalog { return NewCatalog(Defaults) }

// Normalize trims and upper-cases a label.
func Normalize(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// All returns the entries ordered by code.
func (c *Catalog) All() []Action {
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// Label returns the label for code.
func (c *Catalog) Label(code int) (string, bool) {
	a, ok := c.byCode[code]
	return a.Label, ok
}

// Code returns the code for label, matched case-insensitively.
func (c *Catalog) Code(label string) (int, bool) {
	a, ok := c.byLabel[Normalize(label)]
	return a.Code, ok
}

// Target is the action a request asks to be judged against. Label is empty
// when the request named none; Code is nil when it is not in the catalog.
type Target struct {
	Label string
	Code  *int
}

// Empty reports whether no target was given.
func (t Target) Empty() bool { return t.Label == "" }

// Resolve picks the target from a request's optional code and name. A known
// code wins over the name. An unknown name is kept, upper-cased, without a
// code.
func (c *Catalog) Resolve(name string, code *int) Target {
	if code != nil {
		if label, ok := c.Label(*code); ok {
			v := *code
			return Target{Label: label, Code: &v}
		}
	}
	label := Normalize(name)
	if label == "" {
		return Target{}
	}
	if v, ok := c.Code(label); ok {
		return Target{Label: label, Code: &v}
	}
	return Target{Label: label}
}

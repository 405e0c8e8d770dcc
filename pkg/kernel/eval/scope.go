package eval

// Scope is the resolution context of one pipeline run: the output of the
// most recently attempted step ($prev) and the outputs bound to aliases
// ($steps.<alias>). A Scope is never mutated; Bind returns a new one, so a
// scope handed to a step always reflects exactly the steps before it.
type Scope struct {
	prev    slot
	aliases map[string]slot
}

type slot struct {
	value   any
	defined bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{aliases: map[string]slot{}}
}

// Bind records the outcome of an attempted step and returns the new scope.
// defined is false when the step produced no data (it failed). When alias
// is non-empty the output is also bound under that alias.
func (s *Scope) Bind(alias string, value any, defined bool) *Scope {
	next := &Scope{
		prev:    slot{value: value, defined: defined},
		aliases: make(map[string]slot, len(s.aliases)+1),
	}
	for k, v := range s.aliases {
		next.aliases[k] = v
	}
	if alias != "" {
		next.aliases[alias] = slot{value: value, defined: defined}
	}
	return next
}

// Prev returns the most recently attempted step's output.
func (s *Scope) Prev() (any, bool) {
	return s.prev.value, s.prev.defined
}

// Step returns the output bound to alias.
func (s *Scope) Step(alias string) (any, bool) {
	v, ok := s.aliases[alias]
	if !ok {
		return nil, false
	}
	return v.value, v.defined
}

// Aliases returns the number of bound aliases.
func (s *Scope) Aliases() int {
	return len(s.aliases)
}

package analysis

// Runtime identifies a compiler runtime the loader recognized in the
// image. Recovery passes use it to special-case the runtime's calling
// patterns, e.g. Visual Basic dispatch thunks.
type Runtime int

const (
	RuntimeNone Runtime = iota
	RuntimeVisualBasic
	RuntimeBorland
)

func (r Runtime) String() string {
	switch r {
	case RuntimeVisualBasic:
		return "visualbasic"
	case RuntimeBorland:
		return "borland"
	default:
		return "none"
	}
}

// WithRuntime records the detected runtime on the analyzer.
func WithRuntime(r Runtime) Option {
	return func(a *Analyzer) { a.runtime = r }
}

func (a *Analyzer) Runtime() Runtime {
	return a.runtime
}

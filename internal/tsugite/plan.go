package tsugite

// Instruction is one step of a root's construction plan, consumed by the
// external code printer. The set is closed; the printer matches it
// exhaustively.
type Instruction interface {
	instruction()
}

// DeclareVariable forward-declares a variable before assignment, used for
// shared-lifetime variables and cycle placeholders.
type DeclareVariable struct {
	Var  string
	Type TypeRef
	Node NodeID
}

// MemberInit is one field/setter/initializer assignment attached to a
// construction instruction.
type MemberInit struct {
	Kind InjectionKind
	Name string
	Var  string
}

// AssignFromNewInstance constructs an implementation: constructor args in
// declared ordinal order, then member injections.
type AssignFromNewInstance struct {
	Var     string
	Impl    TypeRef
	Args    []string
	Members []MemberInit
	Node    NodeID
}

// AssignFromFactory invokes a user factory: resolver slot variables in
// declared order, then post-construction initializers.
type AssignFromFactory struct {
	Var          string
	Result       TypeRef
	Resolvers    []string
	Initializers []MemberInit
	Node         NodeID
}

// AssignFromConstruct materializes a synthetic construct from already
// built source variables.
type AssignFromConstruct struct {
	Var     string
	Kind    ConstructKind
	Type    TypeRef
	Sources []string
	Default string
	Node    NodeID
}

// EnterScope and ExitScope are paired boundary markers.
type EnterScope struct {
	Kind ScopeKind
	// Var is the variable whose construction the scope encloses, when any.
	Var string
}

type ExitScope struct {
	Kind ScopeKind
}

// RegisterDisposable marks a singleton/scoped instance for disposal
// tracking in the generated composition.
type RegisterDisposable struct {
	Var      string
	Lifetime Lifetime
}

func (DeclareVariable) instruction()       {}
func (AssignFromNewInstance) instruction() {}
func (AssignFromFactory) instruction()     {}
func (AssignFromConstruct) instruction()   {}
func (EnterScope) instruction()            {}
func (ExitScope) instruction()             {}
func (RegisterDisposable) instruction()    {}

// Plan is the ordered instruction stream for one root.
type Plan struct {
	Root         Root
	ResultVar    string
	Instructions []Instruction
	// IsThreadSafe advises the printer to guard single-instance checks
	// with a lock in the generated code's runtime.
	IsThreadSafe bool
}

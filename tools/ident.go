package tools

// Ident is a tool's stable, unique name as referenced by a model's tool
// calls and a Descriptor's registration key. It is a distinct string type so
// tool names cannot be silently confused with free-form text.
type Ident string

// String implements fmt.Stringer.
func (i Ident) String() string { return string(i) }

// Empty reports whether the identifier carries no name.
func (i Ident) Empty() bool { return i == "" }

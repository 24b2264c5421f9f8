// Package descriptor parses JVM field and method descriptor strings
// (e.g. "I", "Ljava/lang/String;", "[C", "(I)V") into a structured form.
//
// Both the method area's layout algorithm and the interpreter's pop_args /
// widening-narrowing logic need to know a type's width and stack category,
// so descriptor parsing lives in its own package rather than duplicated in
// each.
package descriptor

import "fmt"

// Kind identifies the shape of a parsed descriptor.
type Kind int

const (
	Boolean Kind = iota
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
	Object
	Array
)

// Descriptor is a parsed field/array-component type.
type Descriptor struct {
	Kind      Kind
	ClassName string      // set when Kind == Object
	Component *Descriptor // set when Kind == Array
}

// Width returns the storage width in bytes of a value of this type, per
// spec.md's "widening from narrow primitives ... on read; narrowing on
// write" rule: bool/byte = 1, char/short = 2, int/float/reference = 4,
// long/double = 8.
func (d *Descriptor) Width() int {
	switch d.Kind {
	case Boolean, Byte:
		return 1
	case Char, Short:
		return 2
	case Long, Double:
		return 8
	default: // Int, Float, Object, Array
		return 4
	}
}

// Category returns the stack-slot category: 2 for long/double, 1 otherwise.
func (d *Descriptor) Category() int {
	if d.Kind == Long || d.Kind == Double {
		return 2
	}
	return 1
}

// IsReference reports whether this type is stored as a heap Reference.
func (d *Descriptor) IsReference() bool {
	return d.Kind == Object || d.Kind == Array
}

// String renders the descriptor back to its wire form.
func (d *Descriptor) String() string {
	switch d.Kind {
	case Boolean:
		return "Z"
	case Byte:
		return "B"
	case Char:
		return "C"
	case Short:
		return "S"
	case Int:
		return "I"
	case Long:
		return "J"
	case Float:
		return "F"
	case Double:
		return "D"
	case Object:
		return "L" + d.ClassName + ";"
	case Array:
		return "[" + d.Component.String()
	default:
		return "?"
	}
}

// Parse parses a single field/component descriptor, e.g. "I" or "[[Ljava/lang/Object;".
func Parse(s string) (*Descriptor, error) {
	d, rest, err := parseOne(s)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("descriptor: trailing input after %q: %q", s, rest)
	}
	return d, nil
}

func parseOne(s string) (*Descriptor, string, error) {
	if s == "" {
		return nil, "", fmt.Errorf("descriptor: empty input")
	}
	switch s[0] {
	case 'Z':
		return &Descriptor{Kind: Boolean}, s[1:], nil
	case 'B':
		return &Descriptor{Kind: Byte}, s[1:], nil
	case 'C':
		return &Descriptor{Kind: Char}, s[1:], nil
	case 'S':
		return &Descriptor{Kind: Short}, s[1:], nil
	case 'I':
		return &Descriptor{Kind: Int}, s[1:], nil
	case 'J':
		return &Descriptor{Kind: Long}, s[1:], nil
	case 'F':
		return &Descriptor{Kind: Float}, s[1:], nil
	case 'D':
		return &Descriptor{Kind: Double}, s[1:], nil
	case 'L':
		end := -1
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, "", fmt.Errorf("descriptor: unterminated class descriptor %q", s)
		}
		return &Descriptor{Kind: Object, ClassName: s[1:end]}, s[end+1:], nil
	case '[':
		component, rest, err := parseOne(s[1:])
		if err != nil {
			return nil, "", err
		}
		return &Descriptor{Kind: Array, Component: component}, rest, nil
	default:
		return nil, "", fmt.Errorf("descriptor: cannot parse %q", s)
	}
}

// MethodDescriptor is a parsed "(args)return" method descriptor.
type MethodDescriptor struct {
	Args    []*Descriptor
	Returns *Descriptor // nil for void
}

// ParseMethod parses a method descriptor such as "(ILjava/lang/String;)Z".
func ParseMethod(s string) (*MethodDescriptor, error) {
	if s == "" || s[0] != '(' {
		return nil, fmt.Errorf("descriptor: invalid method descriptor %q", s)
	}
	md := &MethodDescriptor{}
	rest := s[1:]
	for rest != "" && rest[0] != ')' {
		d, r, err := parseOne(rest)
		if err != nil {
			return nil, fmt.Errorf("descriptor: invalid method descriptor %q: %w", s, err)
		}
		md.Args = append(md.Args, d)
		rest = r
	}
	if rest == "" || rest[0] != ')' {
		return nil, fmt.Errorf("descriptor: unterminated method descriptor %q", s)
	}
	rest = rest[1:]
	if rest == "V" {
		return md, nil
	}
	d, r, err := parseOne(rest)
	if err != nil {
		return nil, fmt.Errorf("descriptor: invalid return type in %q: %w", s, err)
	}
	if r != "" {
		return nil, fmt.Errorf("descriptor: trailing input after return type in %q", s)
	}
	md.Returns = d
	return md, nil
}

// ArgsCategory returns the total stack-slot width of the argument list,
// i.e. the number of local-variable slots a call needs for its parameters.
func (md *MethodDescriptor) ArgsCategory() int {
	total := 0
	for _, a := range md.Args {
		total += a.Category()
	}
	return total
}

// String renders the method descriptor back to its wire form.
func (md *MethodDescriptor) String() string {
	s := "("
	for _, a := range md.Args {
		s += a.String()
	}
	s += ")"
	if md.Returns == nil {
		s += "V"
	} else {
		s += md.Returns.String()
	}
	return s
}

package heap

import "github.com/shunsuke-abe/govm/pkg/descriptor"

// Component identifies an array's element type: a primitive width or a
// reference, per spec.md section 3's ArrayHeader.component.
type Component struct {
	Kind      descriptor.Kind
	ClassName string // element class/array descriptor, for reference arrays
}

// Width returns the per-element byte width.
func (c Component) Width() int {
	d := descriptor.Descriptor{Kind: c.Kind}
	return d.Width()
}

// IsReference reports whether elements of this array are Reference values.
func (c Component) IsReference() bool {
	return c.Kind == descriptor.Object || c.Kind == descriptor.Array
}

// Primitive array component kinds, named the way `newarray`'s atype
// operand enumerates them (JVM 8 table 6.5.newarray-A).
var (
	ComponentBoolean = Component{Kind: descriptor.Boolean}
	ComponentByte    = Component{Kind: descriptor.Byte}
	ComponentChar    = Component{Kind: descriptor.Char}
	ComponentShort   = Component{Kind: descriptor.Short}
	ComponentInt     = Component{Kind: descriptor.Int}
	ComponentLong    = Component{Kind: descriptor.Long}
	ComponentFloat   = Component{Kind: descriptor.Float}
	ComponentDouble  = Component{Kind: descriptor.Double}
)

// ComponentFromAtype maps the newarray atype byte to a primitive Component.
func ComponentFromAtype(atype uint8) (Component, bool) {
	switch atype {
	case 4:
		return ComponentBoolean, true
	case 5:
		return ComponentChar, true
	case 6:
		return ComponentFloat, true
	case 7:
		return ComponentDouble, true
	case 8:
		return ComponentByte, true
	case 9:
		return ComponentShort, true
	case 10:
		return ComponentInt, true
	case 11:
		return ComponentLong, true
	default:
		return Component{}, false
	}
}

// ReferenceComponent builds a reference-array component for anewarray and
// multianewarray, naming the element class.
func ReferenceComponent(className string) Component {
	return Component{Kind: descriptor.Object, ClassName: className}
}

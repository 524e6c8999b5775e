package sqlstore

import "strconv"

type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// Builder hands out placeholders and collects their arguments in order.
type Builder struct {
	Style PlaceholderStyle
	args  []any
}

func NewBuilder(style PlaceholderStyle) *Builder {
	return &Builder{Style: style, args: make([]any, 0)}
}

func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	switch b.Style {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(len(b.args))
	default:
		return "?"
	}
}

func (b *Builder) Args() []any { return b.args }
func (b *Builder) Len() int    { return len(b.args) }

// Package filtergraph builds ffmpeg filter graphs from typed nodes and serializes
// them to ffmpeg's textual syntax. Escaping happens only in String(), so callers
// pass raw values (caption text, expressions, paths) and never hand-escape.
package filtergraph

import (
	"math"
	"strconv"
	"strings"
)

// Arg is a single filter option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value string
}

// Filter is one filter instance, e.g. scale=w=1920:h=1080.
type Filter struct {
	Name string
	Args []Arg
}

// New creates a filter with no options.
func New(name string) Filter {
	return Filter{Name: name}
}

// Set appends a keyed option and returns the filter for chaining.
func (f Filter) Set(key, value string) Filter {
	f.Args = append(append([]Arg(nil), f.Args...), Arg{Key: key, Value: value})
	return f
}

// SetInt appends an integer option.
func (f Filter) SetInt(key string, v int) Filter {
	return f.Set(key, strconv.Itoa(v))
}

// SetFloat appends a float option formatted with millisecond precision.
func (f Filter) SetFloat(key string, v float64) Filter {
	return f.Set(key, FormatSeconds(v))
}

// String serializes the filter with both escaping levels applied.
func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		v := escapeGraph(escapeOption(a.Value))
		if a.Key == "" {
			parts[i] = v
		} else {
			parts[i] = a.Key + "=" + v
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear run of filters between labelled pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var sb strings.Builder
	for _, in := range c.Inputs {
		sb.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		sb.WriteString("[" + out + "]")
	}
	return sb.String()
}

// Graph is an ordered set of chains, serialized with ';' separators.
type Graph struct {
	chains []Chain
}

// Add appends a chain reading from inputs and writing to outputs.
func (g *Graph) Add(inputs []string, outputs []string, filters ...Filter) *Graph {
	g.chains = append(g.chains, Chain{Inputs: inputs, Filters: filters, Outputs: outputs})
	return g
}

// Chains returns a copy of the graph's chains.
func (g *Graph) Chains() []Chain {
	return append([]Chain(nil), g.chains...)
}

// Len reports the number of chains.
func (g *Graph) Len() int {
	return len(g.chains)
}

func (g *Graph) String() string {
	parts := make([]string, len(g.chains))
	for i, c := range g.chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// Join serializes a plain filter chain without pad labels, for -vf / -af.
func Join(filters ...Filter) string {
	return Chain{Filters: filters}.String()
}

// StreamLabel names an input stream pad, e.g. StreamLabel(2, "v") == "2:v".
func StreamLabel(input int, kind string) string {
	return strconv.Itoa(input) + ":" + kind
}

// FormatSeconds renders a duration in seconds rounded to milliseconds with no
// trailing zeros, so 3 becomes "3" and 7.4999999 becomes "7.5".
func FormatSeconds(v float64) string {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		r = 0 // normalizes -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// escapeOption escapes a value for the filter option parser (first level).
func escapeOption(v string) string {
	return escapeChars(v, `\':`)
}

// escapeGraph escapes a value for the filtergraph parser (second level).
func escapeGraph(v string) string {
	return escapeChars(v, `\'[],;`)
}

func escapeChars(v, special string) string {
	if !strings.ContainsAny(v, special) {
		return v
	}
	var sb strings.Builder
	sb.Grow(len(v) + 8)
	for _, r := range v {
		if strings.ContainsRune(special, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Package wireproto implements the pure-function HTTP/1.1 header grammars
// and the RFC 2616 date codec used by the wire framer. Every decoder here
// takes raw bytes and populates an output struct; none of them perform I/O.
package wireproto

import "strings"

// KV is a single name/value pair with ASCII case-insensitive name equality,
// used for small fixed-key attribute bags (challenge params, header folds)
// where an ordered slice is simpler and no slower than a map.
type KV struct {
	Name  string
	Value string
}

// Params is an insertion-ordered list of KV pairs.
type Params []KV

// Get returns the first value for name (case-insensitive), and whether it
// was found.
func (p Params) Get(name string) (string, bool) {
	for _, kv := range p {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Set appends or overwrites name's value.
func (p *Params) Set(name, value string) {
	for i, kv := range *p {
		if strings.EqualFold(kv.Name, name) {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, KV{Name: name, Value: value})
}

package structure

import "sort"

// Group is a named control channel and the muscles (by declaration index)
// that share it.
type Group struct {
	Name    string
	Role    Role
	Muscles []int
}

// Groups partitions the spec's muscles into control channels sorted by name.
func Groups(s Spec) []Group {
	byName := make(map[string]*Group)
	names := make([]string, 0)
	for i, m := range s.Muscles {
		name := m.GroupName()
		g, ok := byName[name]
		if !ok {
			g = &Group{Name: name, Role: m.Role}
			byName[name] = g
			names = append(names, name)
		}
		g.Muscles = append(g.Muscles, i)
	}
	sort.Strings(names)
	out := make([]Group, 0, len(names))
	for _, name := range names {
		out = append(out, *byName[name])
	}
	return out
}

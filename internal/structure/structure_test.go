package structure

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func prism() Spec {
	return NewBuilder("prism").
		AddNode(0, 0, 0, 0).
		AddNode(1, 1, 0, 0).
		AddNode(2, 0, 0, 1).
		AddNode(3, 0, 1, 0).
		AddNode(4, 1, 1, 0).
		AddNode(5, 0, 1, 1).
		AddRods(
			Rod{From: 0, To: 4, Mass: 1},
			Rod{From: 1, To: 5, Mass: 1},
			Rod{From: 2, To: 3, Mass: 1},
		).
		AddMuscles(
			Muscle{From: 0, To: 1, Role: RolePassive, Stiffness: 10},
			Muscle{From: 1, To: 2, Role: RolePassive, Stiffness: 10},
			Muscle{From: 3, To: 4, Role: RoleActive, Stiffness: 10, Group: "top"},
			Muscle{From: 4, To: 5, Role: RoleActive, Stiffness: 10, Group: "top"},
		).
		AddMarker(Marker{Rod: 0, Node: 4}).
		Spec()
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	if err := Validate(prism()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsMalformedSpecs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Spec)
		kind   ErrorKind
	}{
		{"duplicate node", func(s *Spec) { s.Nodes = append(s.Nodes, Node{Index: 0, Pos: r3.Vec{X: 9}}) }, KindDuplicateNode},
		{"rod dangling", func(s *Spec) { s.Rods[0].To = 42 }, KindDanglingNode},
		{"rod same node", func(s *Spec) { s.Rods[0].To = s.Rods[0].From }, KindDegenerateRod},
		{"rod coincident", func(s *Spec) { s.Nodes[4].Pos = s.Nodes[0].Pos }, KindDegenerateRod},
		{"muscle dangling", func(s *Spec) { s.Muscles[0].From = -3 }, KindDanglingNode},
		{"muscle same node", func(s *Spec) { s.Muscles[0].To = s.Muscles[0].From }, KindDegenerateMuscle},
		{"muscle role", func(s *Spec) { s.Muscles[1].Role = "sleepy" }, KindUnknownRole},
		{"negative stiffness", func(s *Spec) { s.Muscles[1].Stiffness = -1 }, KindBadParameter},
		{"group role conflict", func(s *Spec) { s.Muscles[0].Group = "top" }, KindGroupRole},
		{"marker rod", func(s *Spec) { s.Markers[0].Rod = 7 }, KindBadMarker},
		{"marker node", func(s *Spec) { s.Markers[0].Node = 1 }, KindBadMarker},
		{"unattached node", func(s *Spec) {
			s.Nodes = append(s.Nodes, Node{Index: 9, Pos: r3.Vec{X: 5}})
			s.Muscles = append(s.Muscles, Muscle{From: 0, To: 9, Role: RolePassive})
		}, KindUnattachedNode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := prism()
			tc.mutate(&s)
			err := Validate(s)
			if !errors.Is(err, ErrStructural) {
				t.Fatalf("expected ErrStructural, got %v", err)
			}
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if serr.Kind != tc.kind {
				t.Fatalf("unexpected kind: got=%s want=%s (%v)", serr.Kind, tc.kind, err)
			}
		})
	}
}

func TestBuilderNeverMutatesReceiver(t *testing.T) {
	base := NewBuilder("base").AddNode(0, 0, 0, 0).AddNode(1, 1, 0, 0)
	left := base.AddRod(Rod{From: 0, To: 1})
	right := base.AddNode(2, 0, 1, 0)

	if got := len(base.Spec().Rods); got != 0 {
		t.Fatalf("base gained rods: %d", got)
	}
	if got := len(left.Spec().Nodes); got != 2 {
		t.Fatalf("left saw sibling node: %d", got)
	}
	if got := len(right.Spec().Nodes); got != 3 {
		t.Fatalf("right missing node: %d", got)
	}
	if _, err := right.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
}

func TestGroupsSortedWithRoleFallback(t *testing.T) {
	groups := Groups(prism())
	if len(groups) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if groups[0].Name != "passive" || groups[0].Role != RolePassive || len(groups[0].Muscles) != 2 {
		t.Fatalf("unexpected passive group: %+v", groups[0])
	}
	if groups[1].Name != "top" || groups[1].Role != RoleActive || groups[1].Muscles[1] != 3 {
		t.Fatalf("unexpected top group: %+v", groups[1])
	}
}

func TestApplyRotatesThenTranslates(t *testing.T) {
	s := prism()
	tr := Translate(r3.Vec{Y: 10}).Rotate(r3.Vec{Z: 1}, math.Pi/2)
	moved := Apply(s, tr)

	got := moved.Nodes[1].Pos
	want := r3.Vec{X: 0, Y: 11, Z: 0}
	if r3.Norm(r3.Sub(got, want)) > 1e-9 {
		t.Fatalf("unexpected node position: got=%v want=%v", got, want)
	}
	if s.Nodes[1].Pos.X != 1 {
		t.Fatalf("source spec mutated: %v", s.Nodes[1].Pos)
	}
}

func TestComposeRenumbersAndBridges(t *testing.T) {
	parent := prism()
	child := prism()
	bridges := []Muscle{
		{From: 3, To: 0, Role: RoleActive, Stiffness: 5, Group: "bridge"},
		{From: 4, To: 1, Role: RoleActive, Stiffness: 5, Group: "bridge"},
	}

	merged, mapping, err := Compose(parent, child, Translate(r3.Vec{Y: 2}), bridges)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(merged.Nodes) != 12 || len(merged.Rods) != 6 || len(merged.Muscles) != 10 || len(merged.Markers) != 2 {
		t.Fatalf("unexpected merged sizes: nodes=%d rods=%d muscles=%d markers=%d",
			len(merged.Nodes), len(merged.Rods), len(merged.Muscles), len(merged.Markers))
	}
	if mapping[0] != 6 || mapping[5] != 11 {
		t.Fatalf("unexpected mapping: %v", mapping)
	}
	if merged.Markers[1].Rod != 3 || merged.Markers[1].Node != mapping[4] {
		t.Fatalf("child marker not rewritten: %+v", merged.Markers[1])
	}
	last := merged.Muscles[len(merged.Muscles)-1]
	if last.From != 4 || last.To != mapping[1] {
		t.Fatalf("bridge not rewritten: %+v", last)
	}
	if len(child.Nodes) != 6 || child.Nodes[0].Index != 0 {
		t.Fatalf("child mutated: %+v", child.Nodes)
	}
}

func TestComposeRejectsUnknownBridgeNode(t *testing.T) {
	_, _, err := Compose(prism(), prism(), Translate(r3.Vec{Y: 2}), []Muscle{{From: 0, To: 99, Role: RoleActive}})
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestDecodeYAML(t *testing.T) {
	doc := []byte(`
name: strut
nodes:
  - {index: 0, x: 0, y: 0, z: 0}
  - {index: 1, x: 0, y: 2, z: 0}
  - {index: 2, x: 1, y: 0, z: 0}
  - {index: 3, x: 1, y: 2, z: 0}
rods:
  - {from: 0, to: 1, mass: 1, radius: 0.1}
  - {from: 2, to: 3, mass: 1, radius: 0.1}
muscles:
  - {from: 0, to: 3, role: active, stiffness: 100, damping: 5, group: diagonal}
  - {from: 1, to: 2, role: passive, stiffness: 100}
markers:
  - {rod: 1, node: 3, offset: [0, 0.5, 0]}
`)
	s, err := Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Name != "strut" || len(s.Nodes) != 4 || len(s.Muscles) != 2 {
		t.Fatalf("unexpected spec: %+v", s)
	}
	if s.Muscles[0].GroupName() != "diagonal" || s.Muscles[1].GroupName() != "passive" {
		t.Fatalf("unexpected groups: %+v", s.Muscles)
	}
	if s.Markers[0].Offset.Y != 0.5 {
		t.Fatalf("unexpected marker offset: %+v", s.Markers[0])
	}

	if _, err := Decode([]byte("nodes: [{index: 0}]\nrods: [{from: 0, to: 1}]\n")); !errors.Is(err, ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

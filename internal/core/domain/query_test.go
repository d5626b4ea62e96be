package domain

import "testing"

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
		ok   bool
	}{
		{"=", OpEq, true},
		{"==", OpEq, true},
		{"!=", OpNe, true},
		{"<", OpLt, true},
		{"<=", OpLe, true},
		{">", OpGt, true},
		{">=", OpGe, true},
		{"=<", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseOperator(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestLocationPath(t *testing.T) {
	l := LocationPath{PackageID: "pkg", ResourceTypeID: "rt"}
	if l.String() != "/pkg/rt" || l.HasRootNode() {
		t.Errorf("unexpected location %q", l.String())
	}

	l.RootNode = "*"
	if l.String() != "/pkg/rt/*" || l.HasRootNode() {
		t.Errorf("unexpected location %q", l.String())
	}

	l.RootNode = "station"
	if len(l.Steps()) != 3 || !l.HasRootNode() {
		t.Errorf("unexpected steps %v", l.Steps())
	}
}

func TestParsedQuery_String(t *testing.T) {
	lat := PathExpr{PackageID: "pkg", ResourceTypeID: "rt", XPath: "station/lat"}
	lon := PathExpr{PackageID: "pkg", ResourceTypeID: "rt", XPath: "station/lon"}
	name := PathExpr{PackageID: "pkg", ResourceTypeID: "rt", XPath: "station/@name"}

	q := &ParsedQuery{
		Location: LocationPath{PackageID: "pkg", ResourceTypeID: "rt", RootNode: "station"},
		Predicate: &Logical{
			Op: LogicalOr,
			Left: &Logical{
				Op:    LogicalAnd,
				Left:  &Comparison{Left: lat, Op: OpLt, Value: &Literal{Value: "51"}},
				Right: &Not{Operand: &PathPredicate{Path: lon}},
			},
			Right: &Comparison{Left: name, Op: OpEq, Value: &Literal{Value: "BERN", Quoted: true}},
		},
		OrderBy: []OrderBy{{Path: lat, Descending: true}, {Path: lon}},
		Limit:   5,
		Offset:  10,
	}

	want := `/pkg/rt/station[(/pkg/rt/station/lat < 51 and not(/pkg/rt/station/lon)) or /pkg/rt/station/@name = "BERN"]` +
		` order by /pkg/rt/station/lat desc, /pkg/rt/station/lon asc limit 5 offset 10`
	if got := q.String(); got != want {
		t.Errorf("expected\n%s\ngot\n%s", want, got)
	}
}

func TestLiteral_String(t *testing.T) {
	if got := (Literal{Value: `say "hi"`, Quoted: true}).String(); got != `'say "hi"'` {
		t.Errorf("unexpected literal %s", got)
	}
	if got := (Literal{Value: "-1.5"}).String(); got != "-1.5" {
		t.Errorf("unexpected literal %s", got)
	}
}

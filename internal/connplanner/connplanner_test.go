package connplanner

import (
	"testing"

	"github.com/jonsalaz/n2a/internal/model"
)

func TestPlanEnumerativeByDefault(t *testing.T) {
	root := model.NewEquationSet("root", nil)
	a := model.NewEquationSet("A", nil)
	root.AddPart(a)
	conn := model.NewEquationSet("C", nil)
	root.AddPart(conn)
	conn.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a},
	}

	New().Plan(root)

	if conn.BackendData == nil {
		t.Fatalf("expected BackendData to be populated")
	}
	if conn.BackendData.ConnectionKind != model.ConnectionEnumerative {
		t.Fatalf("expected enumerative, got %v", conn.BackendData.ConnectionKind)
	}
	if len(conn.BackendData.Holders) != 1 {
		t.Fatalf("expected 1 holder, got %d", len(conn.BackendData.Holders))
	}
}

func TestPlanNearestNeighborFromRadius(t *testing.T) {
	root := model.NewEquationSet("root", nil)
	a := model.NewEquationSet("A", nil)
	root.AddPart(a)
	conn := model.NewEquationSet("C", nil)
	root.AddPart(conn)
	conn.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a},
	}
	radius := model.NewVariable("$radius", 0)
	radius.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 2.5}})
	conn.AddVariable(radius)

	New().Plan(root)

	if conn.BackendData.ConnectionKind != model.ConnectionNearestNeighbor {
		t.Fatalf("expected nearest-neighbor, got %v", conn.BackendData.ConnectionKind)
	}
	if conn.BackendData.Holders[0].Radius != 2.5 {
		t.Fatalf("expected radius 2.5, got %v", conn.BackendData.Holders[0].Radius)
	}
}

func TestPlanMatrixDriven(t *testing.T) {
	root := model.NewEquationSet("root", nil)
	a := model.NewEquationSet("A", nil)
	root.AddPart(a)
	conn := model.NewEquationSet("C", nil)
	root.AddPart(conn)
	conn.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a},
	}
	conn.ConnectionMatrix = &model.ConnectionMatrix{
		Source: &model.FunctionCall{Name: "readMatrix", Args: []model.Expr{&model.Constant{Kind: model.Text, Text: "w.mat"}}},
	}

	New().Plan(root)

	if conn.BackendData.ConnectionKind != model.ConnectionMatrixDriven {
		t.Fatalf("expected matrix-driven, got %v", conn.BackendData.ConnectionKind)
	}
}

func TestPlanCoalescesDuplicateHolders(t *testing.T) {
	root := model.NewEquationSet("root", nil)
	a := model.NewEquationSet("A", nil)
	root.AddPart(a)
	conn := model.NewEquationSet("C", nil)
	root.AddPart(conn)
	conn.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a},
		{Alias: "B", Endpoint: a},
	}

	New().Plan(root)

	if len(conn.BackendData.Holders) != 1 {
		t.Fatalf("expected duplicate bindings to coalesce into 1 holder, got %d", len(conn.BackendData.Holders))
	}
}

package digest

import (
	"context"
	"errors"
	"testing"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

func TestDigestAddsSpecialsAndOrdersVariables(t *testing.T) {
	root := model.NewEquationSet("Leaky", nil)
	v := model.NewVariable("V", 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	root.AddVariable(v)

	if _, err := New().Digest(context.Background(), root); err != nil {
		t.Fatalf("Digest: %v", err)
	}

	tVar, ok := root.Variable("$t")
	if !ok {
		t.Fatalf("expected $t to be injected by add-specials")
	}
	if !tVar.HasAttribute(model.AttrPreexistent) {
		t.Errorf("expected $t to be marked preexistent, attributes: %v", tVar.Attributes())
	}

	if len(root.Ordered) == 0 {
		t.Fatalf("expected determine-order to populate Ordered")
	}
}

func TestDigestSynthesizesCompanionForBareDerivative(t *testing.T) {
	root := model.NewEquationSet("Leaky", nil)
	dv := model.NewVariable("V", 1)
	dv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 1}})
	root.AddVariable(dv)

	if _, err := New().Digest(context.Background(), root); err != nil {
		t.Fatalf("Digest: %v", err)
	}

	companion, ok := root.Variable("V")
	if !ok {
		t.Fatalf("expected a synthesized order-0 companion for V'")
	}
	if companion.Derivative != dv {
		t.Errorf("expected the order-0 companion's Derivative link to point at V', got %v", companion.Derivative)
	}
}

func TestDigestSynthesizesChainForSecondOrderDerivative(t *testing.T) {
	root := model.NewEquationSet("Oscillator", nil)
	ddv := model.NewVariable("x", 2)
	ddv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: -1}})
	root.AddVariable(ddv)

	if _, err := New().Digest(context.Background(), root); err != nil {
		t.Fatalf("Digest: %v", err)
	}

	order0, ok0 := root.Variable("x")
	order1, ok1 := root.Variable("x'")
	if !ok0 || !ok1 {
		t.Fatalf("expected both x and x' to be synthesized, got ok0=%v ok1=%v", ok0, ok1)
	}
	if order0.Derivative != order1 {
		t.Errorf("expected x.Derivative to point at x', got %v", order0.Derivative)
	}
	if order1.Derivative != ddv {
		t.Errorf("expected x'.Derivative to point at x'', got %v", order1.Derivative)
	}
}

func TestDigestReportsUnresolvedReference(t *testing.T) {
	root := model.NewEquationSet("Broken", nil)
	v := model.NewVariable("y", 0)
	v.AddEquation(&model.Equation{Expression: &model.AccessVariable{Name: "doesNotExist"}})
	root.AddVariable(v)

	_, err := New().Digest(context.Background(), root)
	if err == nil {
		t.Fatalf("expected Digest to fail on an unresolved reference")
	}
	var abort *diag.AbortRun
	if !errors.As(err, &abort) {
		t.Fatalf("expected an *diag.AbortRun, got %T: %v", err, err)
	}
}

func TestDigestPopulatesIntegratedForOrderAboveZero(t *testing.T) {
	root := model.NewEquationSet("Leaky", nil)
	v := model.NewVariable("V", 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	root.AddVariable(v)
	dv := model.NewVariable("V", 1)
	dv.AddEquation(&model.Equation{Expression: &model.AccessVariable{Name: "V"}})
	root.AddVariable(dv)

	if _, err := New().Digest(context.Background(), root); err != nil {
		t.Fatalf("Digest: %v", err)
	}

	if root.BackendData == nil || len(root.BackendData.Integrated) != 1 {
		t.Fatalf("expected exactly one integrated (order>0) variable, got %v", root.BackendData)
	}
	if root.BackendData.Integrated[0].Order != 1 {
		t.Errorf("expected the integrated variable to be order 1, got %d", root.BackendData.Integrated[0].Order)
	}
}

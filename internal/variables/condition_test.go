package variables

import "testing"

func TestEvaluate_EmptyIsTrue(t *testing.T) {
	s := New()
	ok, err := s.Evaluate("")
	if err != nil || !ok {
		t.Fatalf("want true, nil; got %v, %v", ok, err)
	}
}

func TestEvaluate_StringComparison(t *testing.T) {
	s := New()
	s.SetString("Platform", "x64", false)

	ok, err := s.Evaluate(`Platform = "x64"`)
	if err != nil || !ok {
		t.Fatalf("want true, nil; got %v, %v", ok, err)
	}

	ok, err = s.Evaluate(`Platform = "x86"`)
	if err != nil || ok {
		t.Fatalf("want false, nil; got %v, %v", ok, err)
	}
}

func TestEvaluate_NumericComparisonAndLogic(t *testing.T) {
	s := New()
	s.SetNumeric("InstallLevel", 200, false)

	ok, err := s.Evaluate("InstallLevel >= 100 AND InstallLevel <= 300")
	if err != nil || !ok {
		t.Fatalf("want true, nil; got %v, %v", ok, err)
	}

	ok, err = s.Evaluate("InstallLevel < 100 OR InstallLevel > 1000")
	if err != nil || ok {
		t.Fatalf("want false, nil; got %v, %v", ok, err)
	}
}

func TestEvaluate_NotAndParentheses(t *testing.T) {
	s := New()
	s.SetString("Silent", "0", false)

	ok, err := s.Evaluate(`NOT (Silent = "1")`)
	if err != nil || !ok {
		t.Fatalf("want true, nil; got %v, %v", ok, err)
	}
}

func TestEvaluate_MissingVariableIsEmptyString(t *testing.T) {
	s := New()
	ok, err := s.Evaluate(`UndeclaredVar = ""`)
	if err != nil || !ok {
		t.Fatalf("want true, nil; got %v, %v", ok, err)
	}
}

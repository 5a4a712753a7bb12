package exe

import (
	"testing"

	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

func TestDetect_EvaluatesConditionAgainstStore(t *testing.T) {
	store := variables.New()
	store.SetString("RuntimeInstalled", "1", false)

	e := New(store)
	pkg := &manifest.Package{
		ID:  "RuntimeExe",
		Exe: &manifest.ExeDetail{DetectCondition: `RuntimeInstalled = "1"`},
	}

	if err := e.Detect(nil, pkg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.CurrentState != manifest.StatePresent {
		t.Fatalf("want StatePresent, got %v", pkg.CurrentState)
	}
}

func TestDetect_AbsentWhenConditionFalse(t *testing.T) {
	store := variables.New()
	e := New(store)
	pkg := &manifest.Package{
		ID:  "RuntimeExe",
		Exe: &manifest.ExeDetail{DetectCondition: `RuntimeInstalled = "1"`},
	}

	if err := e.Detect(nil, pkg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.CurrentState != manifest.StateAbsent {
		t.Fatalf("want StateAbsent, got %v", pkg.CurrentState)
	}
}

func TestSplitArgs_EmptyTemplateYieldsNoArgs(t *testing.T) {
	if args := splitArgs("   "); args != nil {
		t.Fatalf("want nil args, got %v", args)
	}
}

func TestActionKey_MapsEachAction(t *testing.T) {
	cases := map[manifest.Action]string{
		manifest.ActionInstall:   "install",
		manifest.ActionUninstall: "uninstall",
		manifest.ActionRepair:    "repair",
		manifest.ActionModify:    "modify",
	}
	for action, want := range cases {
		if got := actionKey(action); got != want {
			t.Fatalf("actionKey(%v) = %q, want %q", action, got, want)
		}
	}
}

package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

const singleVitalMsiDoc = `<?xml version="1.0"?>
<Bundle Id="bundle1" Version="1.0.0" PerMachine="false">
  <Chain>
    <Package Id="P1" CacheId="P1Cache" PerMachine="false" Vital="true">
      <PayloadRef>L1</PayloadRef>
      <MsiPackage ProductCode="{GUID}" Version="1.0.0"/>
    </Package>
  </Chain>
  <Payloads>
    <Payload Id="L1" FilePath="setup.msi" SourcePath="setup.msi"/>
  </Payloads>
</Bundle>`

func TestPlan_SingleVitalMsiInstall(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader(singleVitalMsiDoc))
	require.NoError(t, err)
	m.Packages[0].CurrentState = manifest.StateAbsent

	store := variables.New()
	p := New(m, store)

	result, err := p.Plan(RequestedInstall, nil, nil, "")
	require.NoError(t, err)

	require.Len(t, result.ExecuteActions, 3)
	require.Equal(t, ExecuteKeepRegistration, result.ExecuteActions[0].Kind)
	require.Equal(t, ExecuteCheckpoint, result.ExecuteActions[1].Kind)
	require.Equal(t, ExecutePackage, result.ExecuteActions[2].Kind)
	require.Equal(t, manifest.ActionInstall, result.ExecuteActions[2].PackageAction)

	require.Len(t, result.RollbackActions, 2)
	require.Equal(t, ExecutePackage, result.RollbackActions[0].Kind)
	require.Equal(t, manifest.ActionUninstall, result.RollbackActions[0].PackageAction)
	require.Equal(t, ExecuteCheckpoint, result.RollbackActions[1].Kind)

	require.NotEmpty(t, result.CacheActions)
	require.Equal(t, CachePackageStart, result.CacheActions[0].Kind)
}

func TestPlan_AbsentPackageWithFalseInstallConditionPlansNothing(t *testing.T) {
	doc := strings.Replace(singleVitalMsiDoc,
		`<MsiPackage ProductCode="{GUID}" Version="1.0.0"/>`,
		`<InstallCondition>SkipThis = "1"</InstallCondition><MsiPackage ProductCode="{GUID}" Version="1.0.0"/>`,
		1)
	m, err := manifest.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	m.Packages[0].CurrentState = manifest.StateAbsent

	store := variables.New() // SkipThis left unset, so the condition evaluates false
	p := New(m, store)

	result, err := p.Plan(RequestedInstall, nil, nil, "")
	require.NoError(t, err)

	require.Empty(t, result.CacheActions)
	for _, e := range result.ExecuteActions {
		require.NotEqual(t, ExecutePackage, e.Kind)
	}
}

func TestPlan_UninstallSkipsNonUninstallablePackage(t *testing.T) {
	doc := strings.Replace(singleVitalMsiDoc, `Vital="true">`, `Vital="true" Permanent="true">`, 1)
	m, err := manifest.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	m.Packages[0].CurrentState = manifest.StatePresent
	require.False(t, m.Packages[0].Uninstallable)

	store := variables.New()
	p := New(m, store)

	result, err := p.Plan(RequestedUninstall, nil, nil, "")
	require.NoError(t, err)

	for _, e := range result.ExecuteActions {
		require.NotEqual(t, ExecutePackage, e.Kind)
	}
}

func TestPlan_Layout(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader(singleVitalMsiDoc))
	require.NoError(t, err)

	store := variables.New()
	p := New(m, store)

	result, err := p.Plan(RequestedLayout, nil, nil, "/tmp/layout")
	require.NoError(t, err)
	require.Equal(t, "/tmp/layout", result.LayoutDir)
	require.True(t, result.LayoutActions[0].IsBundle)
	require.Len(t, result.LayoutActions, 2)
}

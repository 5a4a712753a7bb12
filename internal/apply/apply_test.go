package apply

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/chainboot/internal/acquire"
	"github.com/vitaliisemenov/chainboot/internal/cache"
	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/plan"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

const twoPackageDoc = `<?xml version="1.0"?>
<Bundle Id="bundle1" Version="1.0.0" PerMachine="false">
  <Chain>
    <RollbackBoundary Id="rb1" Vital="true"/>
    <RollbackBoundary Id="rb2" Vital="true"/>
    <Package Id="P1" CacheId="P1Cache" PerMachine="false" Vital="true" RollbackBoundaryForward="rb1">
      <PayloadRef>L1</PayloadRef>
      <MsiPackage ProductCode="{GUID1}" Version="1.0.0"/>
    </Package>
    <Package Id="P2" CacheId="P2Cache" PerMachine="false" Vital="true" RollbackBoundaryForward="rb2">
      <PayloadRef>L2</PayloadRef>
      <MsiPackage ProductCode="{GUID2}" Version="1.0.0"/>
    </Package>
  </Chain>
  <Payloads>
    <Payload Id="L1" FilePath="setup1.msi" SourcePath="setup1.msi"/>
    <Payload Id="L2" FilePath="setup2.msi" SourcePath="setup2.msi"/>
  </Payloads>
</Bundle>`

func buildManifest(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	for i := range m.Packages {
		m.Packages[i].CurrentState = manifest.StateAbsent
	}
	return m
}

// writeSourcePayloads creates the local payload files an Acquirer will
// copy from, one per package's PayloadRef, inside dir.
func writeSourcePayloads(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("package-bytes-"+n), 0o644))
	}
}

type fakeResolver struct {
	sourceDir string
}

func (r *fakeResolver) SourceFor(payloadKey string) (acquire.Source, cache.PayloadRef, error) {
	filePath := map[string]string{"L1": "setup1.msi", "L2": "setup2.msi"}[payloadKey]
	src := acquire.Source{Key: payloadKey, LocalPath: filepath.Join(r.sourceDir, filePath)}
	ref := cache.PayloadRef{Key: payloadKey, RelPath: filePath}
	return src, ref, nil
}

func (r *fakeResolver) ContainerSourceFor(containerID string) (acquire.Source, error) {
	return acquire.Source{}, errNotFound
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "no containers in this test fixture" }

type fakeRegistrar struct {
	registered   []string
	unregistered []string
}

func (r *fakeRegistrar) Register(ctx context.Context, bundleID string) error {
	r.registered = append(r.registered, bundleID)
	return nil
}
func (r *fakeRegistrar) Unregister(ctx context.Context, bundleID string, suspended bool) error {
	r.unregistered = append(r.unregistered, bundleID)
	return nil
}
func (r *fakeRegistrar) Save(ctx context.Context, state []byte) error { return nil }

type dispatchCall struct {
	packageID string
	action    manifest.Action
	direction engine.ActionDirection
}

// scriptedDispatcher dispatches according to a per-package-id result/error
// table, recording every call it sees.
type scriptedDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	failing map[string]bool
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, kind manifest.PackageKind, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{packageID: req.Package.ID, action: req.Action, direction: req.Direction})
	d.mu.Unlock()

	if req.Direction == engine.Forward && d.failing[req.Package.ID] {
		return engine.Result{}, &notFoundErr{}
	}
	return engine.Result{}, nil
}

type noopCallback struct{}

func (noopCallback) Progress(percent int) bool      { return true }
func (noopCallback) FilesInUse(paths []string) bool { return true }

func newTestApplier(t *testing.T, m *manifest.Manifest, dispatcher Dispatcher, registrar Registrar) (*Applier, *fakeResolver) {
	t.Helper()
	sourceDir := t.TempDir()
	writeSourcePayloads(t, sourceDir, "setup1.msi", "setup2.msi")

	cacheRoot := t.TempDir()
	store, err := cache.New(cacheRoot, m.BundleID, slog.Default())
	require.NoError(t, err)

	acquirer := acquire.New(acquire.Config{OriginalSourceDir: sourceDir})
	resolver := &fakeResolver{sourceDir: sourceDir}

	return New(m, acquirer, store, dispatcher, resolver, registrar, slog.Default()), resolver
}

func planFor(t *testing.T, m *manifest.Manifest, action plan.RequestedAction) *plan.Plan {
	t.Helper()
	p, err := plan.New(m, variables.New()).Plan(action, nil, nil, "")
	require.NoError(t, err)
	return p
}

func TestApply_SingleVitalPackageSucceeds(t *testing.T) {
	m := buildManifest(t, strings.Replace(twoPackageDoc,
		`<Package Id="P2" CacheId="P2Cache" PerMachine="false" Vital="true" RollbackBoundaryForward="rb2">
      <PayloadRef>L2</PayloadRef>
      <MsiPackage ProductCode="{GUID2}" Version="1.0.0"/>
    </Package>`, "", 1))
	p := planFor(t, m, plan.RequestedInstall)

	dispatcher := &scriptedDispatcher{failing: map[string]bool{}}
	registrar := &fakeRegistrar{}
	applier, _ := newTestApplier(t, m, dispatcher, registrar)

	outcome, err := applier.Apply(context.Background(), p, noopCallback{})
	require.NoError(t, err)
	require.False(t, outcome.RolledBack)
	require.Len(t, registrar.registered, 1)
	require.Empty(t, registrar.unregistered)

	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, "P1", dispatcher.calls[0].packageID)
	require.Equal(t, manifest.ActionInstall, dispatcher.calls[0].action)
}

func TestApply_SecondPackageFailureRollsBackFirstWithinVitalBoundary(t *testing.T) {
	m := buildManifest(t, twoPackageDoc)
	p := planFor(t, m, plan.RequestedInstall)

	dispatcher := &scriptedDispatcher{failing: map[string]bool{"P2": true}}
	registrar := &fakeRegistrar{}
	applier, _ := newTestApplier(t, m, dispatcher, registrar)

	outcome, err := applier.Apply(context.Background(), p, noopCallback{})
	require.Error(t, err)
	require.True(t, outcome.RolledBack)
	require.Len(t, registrar.unregistered, 1)

	var rollbackCalls []dispatchCall
	for _, c := range dispatcher.calls {
		if c.direction == engine.Rollback {
			rollbackCalls = append(rollbackCalls, c)
		}
	}
	require.Len(t, rollbackCalls, 1)
	require.Equal(t, "P1", rollbackCalls[0].packageID)
	require.Equal(t, manifest.ActionUninstall, rollbackCalls[0].action)
}

func TestApply_NonVitalBoundaryFailureIsSkippedNotAborted(t *testing.T) {
	doc := strings.Replace(twoPackageDoc, `RollbackBoundary Id="rb1" Vital="true"`, `RollbackBoundary Id="rb1" Vital="false"`, 1)
	m := buildManifest(t, doc)
	p := planFor(t, m, plan.RequestedInstall)

	dispatcher := &scriptedDispatcher{failing: map[string]bool{"P1": true}}
	registrar := &fakeRegistrar{}
	applier, _ := newTestApplier(t, m, dispatcher, registrar)

	outcome, err := applier.Apply(context.Background(), p, noopCallback{})
	require.NoError(t, err)
	require.False(t, outcome.RolledBack)

	var sawP2 bool
	for _, c := range dispatcher.calls {
		if c.packageID == "P2" && c.direction == engine.Forward {
			sawP2 = true
		}
	}
	require.True(t, sawP2, "P2 should still run after P1's non-vital boundary failed")
}

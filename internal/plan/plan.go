// Package plan implements the planner (C7): it turns a manifest, the
// current detect results, and a requested top-level action into a
// forward execute-action list with a paired rollback mirror, plus a
// parallel cache-action list describing what must be acquired before
// execution can proceed.
package plan

import (
	"fmt"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/metrics"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

// RequestedAction is the top-level action the caller asked for; it is a
// superset of manifest.Action because Layout has no per-package analogue.
type RequestedAction int

const (
	RequestedInstall RequestedAction = iota
	RequestedUninstall
	RequestedRepair
	RequestedModify
	RequestedLayout
)

// ExecuteKind distinguishes the shapes an execute/rollback list entry can
// take.
type ExecuteKind int

const (
	ExecuteKeepRegistration ExecuteKind = iota
	ExecuteRemoveRegistration
	ExecuteCheckpoint
	ExecutePackage
)

// ExecuteEntry is one step in the forward execute list or its rollback
// mirror.
type ExecuteEntry struct {
	Kind          ExecuteKind
	CheckpointID  int
	PackageID     string
	PackageAction manifest.Action
	BoundaryID    string // rollback boundary this package action executes within, if any
}

// CacheKind distinguishes the shapes a cache-action list entry can take.
type CacheKind int

const (
	CachePackageStart CacheKind = iota
	CacheAcquireContainer
	CacheAcquirePayload
	CacheExtractContainer
	CacheCompletePayload
	CachePackageStop
	CacheSyncpoint
	CacheRollbackPackage
)

// CacheEntry is one step in the cache-action list or its rollback mirror.
type CacheEntry struct {
	Kind         CacheKind
	PackageID    string
	PayloadKey   string
	ContainerID  string
	CheckpointID int
}

// LayoutEntry describes one bundle or payload copy performed by a Layout
// action.
type LayoutEntry struct {
	PackageID  string
	PayloadKey string
	IsBundle   bool
}

// Plan is the planner's full output: forward and rollback execute lists,
// their parallel cache-action lists, and (for Layout) the flat copy list.
type Plan struct {
	Action            RequestedAction
	BundleID          string
	PerMachine        bool
	ResumeCommandLine []string
	LayoutDir         string

	ExecuteActions  []ExecuteEntry
	RollbackActions []ExecuteEntry

	CacheActions         []CacheEntry
	RollbackCacheActions []CacheEntry

	LayoutActions []LayoutEntry
}

// UX receives the two package-scoped planning callbacks; OnPlanPackageBegin
// may rewrite the proposed requested action (e.g. a UX-level "repair
// instead of reinstall" policy).
type UX interface {
	OnPlanPackageBegin(packageID string, requested *manifest.Action)
	OnPlanPackageComplete(packageID string, requested manifest.Action)
}

// NoopUX answers every callback with the default unmodified.
type NoopUX struct{}

func (NoopUX) OnPlanPackageBegin(string, *manifest.Action) {}
func (NoopUX) OnPlanPackageComplete(string, manifest.Action) {}

// Planner builds Plans for one manifest.
type Planner struct {
	manifest *manifest.Manifest
	store    *variables.Store
}

// New returns a Planner bound to m and store.
func New(m *manifest.Manifest, store *variables.Store) *Planner {
	return &Planner{manifest: m, store: store}
}

// Plan runs the ten-step planning algorithm for action, invoking ux's
// per-package callbacks along the way.
func (p *Planner) Plan(action RequestedAction, ux UX, resumeCommandLine []string, layoutDir string) (*Plan, error) {
	if ux == nil {
		ux = NoopUX{}
	}

	plan := &Plan{
		Action:            action,
		BundleID:          p.manifest.BundleID,
		PerMachine:        p.manifest.PerMachine,
		ResumeCommandLine: resumeCommandLine,
		LayoutDir:         layoutDir,
	}

	if action == RequestedLayout {
		p.planLayout(plan)
		return plan, nil
	}

	packages := p.orderedPackages(action)

	checkpointCounter := 0
	var openBoundary string
	var firstAnchor, lastAnchor int = -1, -1

	for _, idx := range packages {
		pkg := &p.manifest.Packages[idx]

		// a boundary implicitly closes when the next one opens; no
		// explicit close entry is emitted anywhere in the plan.
		if id := boundaryOpensAt(pkg); id != "" {
			openBoundary = id
		}

		conditionOK, err := p.evalCondition(pkg.InstallCondition)
		if err != nil {
			return nil, err
		}
		requested := defaultRequestedState(*pkg, action, conditionOK)

		ux.OnPlanPackageBegin(pkg.ID, &requested)

		if requested != manifest.ActionNone {
			checkpointCounter++
			cp := checkpointCounter
			plan.ExecuteActions = append(plan.ExecuteActions, ExecuteEntry{Kind: ExecuteCheckpoint, CheckpointID: cp})
			plan.RollbackActions = append([]ExecuteEntry{{Kind: ExecuteCheckpoint, CheckpointID: cp}}, plan.RollbackActions...)

			p.planPackageExecute(plan, pkg, requested, cp, openBoundary)
		} else {
			// no execute, rollback, cache or dependency-registration
			// entries are planned for a package with no requested action
		}

		if pkg.Uninstallable {
			if firstAnchor == -1 {
				firstAnchor = len(plan.ExecuteActions)
			}
			lastAnchor = len(plan.ExecuteActions)
		}

		pkg.Requested = requested
		ux.OnPlanPackageComplete(pkg.ID, requested)
	}

	p.insertRegistration(plan, action, firstAnchor, lastAnchor)

	return plan, nil
}

// orderedPackages returns manifest package indices in plan order: forward
// manifest order for every action except Uninstall, which walks packages
// in reverse so dependents are removed before their dependencies.
func (p *Planner) orderedPackages(action RequestedAction) []int {
	n := len(p.manifest.Packages)
	idx := make([]int, n)
	if action == RequestedUninstall {
		for i := 0; i < n; i++ {
			idx[i] = n - 1 - i
		}
		return idx
	}
	for i := 0; i < n; i++ {
		idx[i] = i
	}
	return idx
}

func boundaryOpensAt(pkg *manifest.Package) string {
	return pkg.RollbackBoundaryFwd
}

func (p *Planner) evalCondition(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	ok, err := p.store.Evaluate(expr)
	if err != nil {
		return false, errkind.Wrap(errkind.Validation, fmt.Sprintf("evaluate install condition %q", expr), err)
	}
	return ok, nil
}

// defaultRequestedState implements the deterministic default-requested-
// state table: ties among Install, Repair, Modify, Uninstall resolve by
// that dominance order.
func defaultRequestedState(pkg manifest.Package, action RequestedAction, conditionOK bool) manifest.Action {
	if !conditionOK {
		return manifest.ActionNone
	}

	switch action {
	case RequestedInstall:
		if pkg.CurrentState == manifest.StatePresent {
			return manifest.ActionNone
		}
		return manifest.ActionInstall

	case RequestedRepair:
		if pkg.CurrentState == manifest.StatePresent {
			return manifest.ActionRepair
		}
		return manifest.ActionInstall

	case RequestedModify:
		if pkg.CurrentState == manifest.StatePresent {
			return manifest.ActionModify
		}
		return manifest.ActionNone

	case RequestedUninstall:
		if !pkg.Uninstallable {
			return manifest.ActionNone
		}
		if pkg.CurrentState == manifest.StatePresent || pkg.CurrentState == manifest.StateCached {
			return manifest.ActionUninstall
		}
		return manifest.ActionNone
	}

	return manifest.ActionNone
}

// planPackageExecute appends the execute entry (and its rollback mirror)
// for pkg, plus the matching cache-action sequence when the package is
// not yet fully cached.
func (p *Planner) planPackageExecute(plan *Plan, pkg *manifest.Package, requested manifest.Action, checkpointID int, boundaryID string) {
	pkg.Execute = requested
	pkg.Rollback = rollbackMirror(requested)

	plan.ExecuteActions = append(plan.ExecuteActions, ExecuteEntry{
		Kind:          ExecutePackage,
		PackageID:     pkg.ID,
		PackageAction: requested,
		BoundaryID:    boundaryID,
	})
	plan.RollbackActions = append([]ExecuteEntry{{
		Kind:          ExecutePackage,
		PackageID:     pkg.ID,
		PackageAction: pkg.Rollback,
		BoundaryID:    boundaryID,
	}}, plan.RollbackActions...)

	if !pkg.Cached {
		p.planPackageCache(plan, pkg, checkpointID)
	}

	metrics.PackagesPlanned.WithLabelValues(requested.String(), pkg.Kind.String()).Inc()
}

func rollbackMirror(action manifest.Action) manifest.Action {
	switch action {
	case manifest.ActionInstall:
		return manifest.ActionUninstall
	case manifest.ActionUninstall:
		return manifest.ActionInstall
	case manifest.ActionRepair, manifest.ActionModify:
		return action
	}
	return manifest.ActionNone
}

// planPackageCache appends PackageStart, Acquire*, ExtractContainer*,
// CachePayload*, PackageStop, keyed on checkpointID so the executor's
// sync-point wait matches the corresponding rollback-cache entries.
func (p *Planner) planPackageCache(plan *Plan, pkg *manifest.Package, checkpointID int) {
	plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CachePackageStart, PackageID: pkg.ID, CheckpointID: checkpointID})

	seenContainers := map[string]bool{}
	for _, payloadKey := range pkg.PayloadRefs {
		idx, ok := p.manifest.PayloadByKey(payloadKey)
		if !ok {
			continue
		}
		payload := p.manifest.Payloads[idx]

		if payload.ContainerRef != "" && !seenContainers[payload.ContainerRef] {
			plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CacheAcquireContainer, ContainerID: payload.ContainerRef, CheckpointID: checkpointID})
			plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CacheExtractContainer, ContainerID: payload.ContainerRef, CheckpointID: checkpointID})
			seenContainers[payload.ContainerRef] = true
		} else if payload.ContainerRef == "" {
			plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CacheAcquirePayload, PayloadKey: payloadKey, CheckpointID: checkpointID})
		}

		plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CacheCompletePayload, PayloadKey: payloadKey, CheckpointID: checkpointID})
	}

	plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CachePackageStop, PackageID: pkg.ID, CheckpointID: checkpointID})
	plan.CacheActions = append(plan.CacheActions, CacheEntry{Kind: CacheSyncpoint, PackageID: pkg.ID, CheckpointID: checkpointID})

	plan.RollbackCacheActions = append(plan.RollbackCacheActions, CacheEntry{Kind: CacheRollbackPackage, PackageID: pkg.ID, CheckpointID: checkpointID})
}

// insertRegistration inserts a KeepRegistration entry (install/modify/
// repair) at the head of the execute list, or a RemoveRegistration entry
// (uninstall) at the tail of the execute list and the head of the rollback
// list. The anchor indices do not change where either entry lands.
func (p *Planner) insertRegistration(plan *Plan, action RequestedAction, firstAnchor, lastAnchor int) {
	if firstAnchor == -1 {
		firstAnchor = 0
	}

	switch action {
	case RequestedUninstall:
		entry := ExecuteEntry{Kind: ExecuteRemoveRegistration}
		plan.ExecuteActions = append(plan.ExecuteActions, entry)
		plan.RollbackActions = append([]ExecuteEntry{entry}, plan.RollbackActions...)
	default:
		entry := ExecuteEntry{Kind: ExecuteKeepRegistration}
		head := append([]ExecuteEntry{entry}, plan.ExecuteActions[:firstAnchor]...)
		plan.ExecuteActions = append(head, plan.ExecuteActions[firstAnchor:]...)
	}
}

// planLayout plans a flat bundle+payload copy list instead of an execute
// list; Layout never touches the registration or cache-thread machinery.
func (p *Planner) planLayout(plan *Plan) {
	plan.LayoutActions = append(plan.LayoutActions, LayoutEntry{IsBundle: true})

	for i := range p.manifest.Packages {
		pkg := &p.manifest.Packages[i]
		for _, payloadKey := range pkg.PayloadRefs {
			plan.LayoutActions = append(plan.LayoutActions, LayoutEntry{PackageID: pkg.ID, PayloadKey: payloadKey})
		}
	}
}

// Package manifest holds the immutable in-memory model of a bundle: its
// packages, payloads, containers, and rollback boundaries, parsed once at
// startup and never mutated afterward. Cross-references between entities
// are resolved to integer indices at parse time so the tree has no
// pointer-based reference counting.
package manifest

// PackageKind is the sum-type tag distinguishing the four package kinds.
type PackageKind int

const (
	KindExe PackageKind = iota
	KindMsi
	KindMsp
	KindMsu
)

func (k PackageKind) String() string {
	switch k {
	case KindExe:
		return "exe"
	case KindMsi:
		return "msi"
	case KindMsp:
		return "msp"
	case KindMsu:
		return "msu"
	default:
		return "unknown"
	}
}

// DetectState is the transient per-package state filled in by Detect.
type DetectState int

const (
	StateUnknown DetectState = iota
	StateAbsent
	StateCached
	StatePresent
)

// Action is a requested/execute/rollback action kind for a package.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionUninstall
	ActionRepair
	ActionModify
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInstall:
		return "install"
	case ActionUninstall:
		return "uninstall"
	case ActionRepair:
		return "repair"
	case ActionModify:
		return "modify"
	default:
		return "unknown"
	}
}

// DependencyAction tracks ref-counting bookkeeping emitted during planning.
type DependencyAction int

const (
	DependencyNone DependencyAction = iota
	DependencyRegister
	DependencyUnregister
)

// MsiDetail carries MSI-specific package fields.
type MsiDetail struct {
	ProductCode     string            `xml:"ProductCode,attr" validate:"required"`
	Language        int               `xml:"Language,attr"`
	Version         string            `xml:"Version,attr" validate:"required"`
	Features        []string          `xml:"Feature"`
	Properties      map[string]string `xml:"-"`
	RelatedUpgrades []string          `xml:"RelatedUpgradeCode"`
	SlipstreamMsps  []string          `xml:"SlipstreamMsp"` // resolved against Msp.PatchCode
}

// MspDetail carries MSP-specific package fields.
type MspDetail struct {
	PatchCode          string   `xml:"PatchCode,attr" validate:"required"`
	ApplicabilityXML   string   `xml:"Applicability"`
	TargetProductCodes []string `xml:"TargetProductCode"`
}

// ExeDetail carries Exe-specific package fields.
type ExeDetail struct {
	DetectCondition string            `xml:"DetectCondition"`
	ArgumentsByAction map[string]string `xml:"-"`
	ExitCodeMapping map[int]string    `xml:"-"`
}

// MsuDetail carries MSU-specific package fields.
type MsuDetail struct {
	DetectCondition string `xml:"DetectCondition"`
	KB              string `xml:"KB,attr"`
}

// Package is one installable unit, sum-typed by Kind.
type Package struct {
	ID                    string      `xml:"Id,attr" validate:"required"`
	Kind                  PackageKind `xml:"-"`
	CacheID               string      `xml:"CacheId,attr"`
	PerMachine            bool        `xml:"PerMachine,attr"`
	Vital                 bool        `xml:"Vital,attr"`
	Uninstallable         bool        `xml:"Permanent,attr"` // inverted below during parse
	InstallCondition      string      `xml:"InstallCondition"`
	RollbackInstallCond   string      `xml:"RollbackInstallCondition"`
	Size                  int64       `xml:"Size,attr"`
	PayloadRefs           []string    `xml:"PayloadRef"`
	ProviderKeys          []string    `xml:"Provider"`
	RollbackBoundaryFwd   string      `xml:"RollbackBoundaryForward,attr"`
	RollbackBoundaryBack  string      `xml:"RollbackBoundaryBackward,attr"`

	Msi *MsiDetail `xml:"MsiPackage"`
	Msp *MspDetail `xml:"MspPackage"`
	Exe *ExeDetail `xml:"ExePackage"`
	Msu *MsuDetail `xml:"MsuPackage"`

	// Transient state, filled by Detect/Plan. Not part of the parsed
	// document; re-set on every Detect/Plan call.
	CurrentState DetectState      `xml:"-"`
	Cached       bool             `xml:"-"`
	Requested    Action           `xml:"-"`
	Execute      Action           `xml:"-"`
	Rollback     Action           `xml:"-"`
	Dependency   DependencyAction `xml:"-"`
}

// Payload is a file the engine needs at execute time.
type Payload struct {
	Key           string `xml:"Id,attr" validate:"required"`
	FilePath      string `xml:"FilePath,attr" validate:"required"`
	Size          int64  `xml:"Size,attr"`
	SourcePath    string `xml:"SourcePath,attr"`
	DownloadURL   string `xml:"DownloadUrl,attr"`
	Hash          string `xml:"Hash,attr"`
	CatalogFile   string `xml:"Catalog,attr"`
	ContainerRef  string `xml:"ContainerRef,attr"` // "" if external
}

// Container is an archive embedded in the bundle holding several payloads.
type Container struct {
	ID          string   `xml:"Id,attr" validate:"required"`
	SourcePath  string   `xml:"SourcePath,attr"`
	DownloadURL string   `xml:"DownloadUrl,attr"`
	Size        int64    `xml:"Size,attr"`
	PayloadRefs []string `xml:"PayloadRef"` // stream order
}

// RollbackBoundary is a bracket within which execute failures trigger
// mirror rollback actions.
type RollbackBoundary struct {
	ID    string `xml:"Id,attr" validate:"required"`
	Vital bool   `xml:"Vital,attr"`
}

// RelatedBundle describes an upgrade/addon/patch relationship to another
// bundle, used by related-bundle detection during planning.
type RelatedBundle struct {
	ID           string `xml:"Id,attr" validate:"required"`
	Relationship string `xml:"Action,attr"` // "upgrade" | "addon" | "patch" | "detect"
}

// Manifest is the parsed bundle. Its structure is fixed once Parse
// returns; per-package transient state is stored on the Package values
// themselves, and Detect and Plan write it in place through pointers into
// the Packages slice.
type Manifest struct {
	BundleID          string             `xml:"Id,attr"`
	BundleVersion     string             `xml:"Version,attr"`
	PerMachine        bool               `xml:"PerMachine,attr"`
	Packages          []Package          `xml:"Chain>Package"`
	Payloads          []Payload          `xml:"Payloads>Payload"`
	Containers        []Container        `xml:"Containers>Container"`
	RollbackBoundaries []RollbackBoundary `xml:"Chain>RollbackBoundary"`
	RelatedBundles    []RelatedBundle    `xml:"RelatedBundles>RelatedBundle"`

	// packageIndex/boundaryIndex/payloadIndex resolve cross-references to
	// integer indices (§9 design note: "arena-owned immutable tree with
	// integer indices").
	packageIndex  map[string]int
	payloadIndex  map[string]int
	boundaryIndex map[string]int
}

// PackageByID returns the index of the package with the given id.
func (m *Manifest) PackageByID(id string) (int, bool) {
	i, ok := m.packageIndex[id]
	return i, ok
}

// PayloadByKey returns the index of the payload with the given key.
func (m *Manifest) PayloadByKey(key string) (int, bool) {
	i, ok := m.payloadIndex[key]
	return i, ok
}

// BoundaryByID returns the index of the rollback boundary with the given id.
func (m *Manifest) BoundaryByID(id string) (int, bool) {
	i, ok := m.boundaryIndex[id]
	return i, ok
}

func (m *Manifest) buildIndices() {
	m.packageIndex = make(map[string]int, len(m.Packages))
	for i, p := range m.Packages {
		m.packageIndex[p.ID] = i
	}
	m.payloadIndex = make(map[string]int, len(m.Payloads))
	for i, p := range m.Payloads {
		m.payloadIndex[p.Key] = i
	}
	m.boundaryIndex = make(map[string]int, len(m.RollbackBoundaries))
	for i, b := range m.RollbackBoundaries {
		m.boundaryIndex[b.ID] = i
	}
}

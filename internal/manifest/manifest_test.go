package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0"?>
<Bundle Id="bundle1" Version="1.0.0" PerMachine="true">
  <Chain>
    <RollbackBoundary Id="rb1" Vital="true"/>
    <Package Id="P1" CacheId="P1Cache" PerMachine="true" Vital="true" RollbackBoundaryForward="rb1" RollbackBoundaryBackward="rb1">
      <PayloadRef>L1</PayloadRef>
      <MsiPackage ProductCode="{GUID}" Version="1.0.0"/>
    </Package>
  </Chain>
  <Payloads>
    <Payload Id="L1" FilePath="setup.msi" SourcePath="setup.msi"/>
  </Payloads>
</Bundle>`

func TestParse_ValidDocument(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Equal(t, "bundle1", m.BundleID)
	require.Len(t, m.Packages, 1)
	require.Equal(t, KindMsi, m.Packages[0].Kind)

	idx, ok := m.PackageByID("P1")
	require.True(t, ok)
	require.Equal(t, 0, idx)
}

func TestParse_UnknownBoundaryRejected(t *testing.T) {
	doc := strings.Replace(sampleDoc, `RollbackBoundaryForward="rb1"`, `RollbackBoundaryForward="missing"`, 1)
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParse_ExternalPayloadRequiresSourceOrURL(t *testing.T) {
	doc := strings.Replace(sampleDoc, `SourcePath="setup.msi"`, ``, 1)
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParse_SlipstreamMustResolve(t *testing.T) {
	doc := strings.Replace(sampleDoc,
		`<MsiPackage ProductCode="{GUID}" Version="1.0.0"/>`,
		`<MsiPackage ProductCode="{GUID}" Version="1.0.0"><SlipstreamMsp>missing-patch</SlipstreamMsp></MsiPackage>`,
		1)
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

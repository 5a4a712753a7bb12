package manifest

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// xmlManifest mirrors the on-disk document shape; Parse converts it into
// the public Manifest and resolves PackageKind from whichever of
// MsiPackage/MspPackage/ExePackage/MsuPackage was present.
type xmlManifest struct {
	XMLName            xml.Name    `xml:"Bundle"`
	Manifest
}

// Parse reads a bundle manifest document from r and returns its validated,
// index-built Manifest.
func Parse(r io.Reader) (*Manifest, error) {
	var doc xmlManifest
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "decode bundle manifest", err)
	}

	m := doc.Manifest
	for i := range m.Packages {
		p := &m.Packages[i]
		switch {
		case p.Msi != nil:
			p.Kind = KindMsi
		case p.Msp != nil:
			p.Kind = KindMsp
		case p.Exe != nil:
			p.Kind = KindExe
		case p.Msu != nil:
			p.Kind = KindMsu
		default:
			return nil, errkind.New(errkind.Validation, fmt.Sprintf("package %q has no recognized type-specific element", p.ID))
		}
		// The XML attribute is named Permanent (the source's own name);
		// Uninstallable is its logical inverse.
		p.Uninstallable = !p.Uninstallable
	}

	m.buildIndices()

	if err := Validate(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

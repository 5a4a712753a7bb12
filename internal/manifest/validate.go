package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

var structValidator = validator.New()

// Validate checks the cross-reference rules from the manifest model's
// design notes, in addition to struct-tag validation of every entity.
func Validate(m *Manifest) error {
	if err := structValidator.Struct(m); err != nil {
		return errkind.Wrap(errkind.Validation, "manifest struct validation", err)
	}
	for i := range m.Packages {
		if err := structValidator.Struct(&m.Packages[i]); err != nil {
			return errkind.Wrap(errkind.Validation, fmt.Sprintf("package %q validation", m.Packages[i].ID), err)
		}
	}

	if err := validateBoundaryRefs(m); err != nil {
		return err
	}
	if err := validatePayloadOwnership(m); err != nil {
		return err
	}
	if err := validateSlipstreamPatches(m); err != nil {
		return err
	}
	return nil
}

// validateBoundaryRefs ensures every package's forward/backward rollback
// boundary references resolve to a declared boundary.
func validateBoundaryRefs(m *Manifest) error {
	for _, p := range m.Packages {
		if p.RollbackBoundaryFwd != "" {
			if _, ok := m.BoundaryByID(p.RollbackBoundaryFwd); !ok {
				return errkind.New(errkind.Validation, fmt.Sprintf("package %q references unknown forward rollback boundary %q", p.ID, p.RollbackBoundaryFwd))
			}
		}
		if p.RollbackBoundaryBack != "" {
			if _, ok := m.BoundaryByID(p.RollbackBoundaryBack); !ok {
				return errkind.New(errkind.Validation, fmt.Sprintf("package %q references unknown backward rollback boundary %q", p.ID, p.RollbackBoundaryBack))
			}
		}
	}
	return nil
}

// validatePayloadOwnership ensures every payload belongs to exactly one
// container or is external (download/local only).
func validatePayloadOwnership(m *Manifest) error {
	for _, c := range m.Containers {
		for _, ref := range c.PayloadRefs {
			idx, ok := m.PayloadByKey(ref)
			if !ok {
				return errkind.New(errkind.Validation, fmt.Sprintf("container %q references unknown payload %q", c.ID, ref))
			}
			p := m.Payloads[idx]
			if p.ContainerRef != "" && p.ContainerRef != c.ID {
				return errkind.New(errkind.Validation, fmt.Sprintf("payload %q claimed by containers %q and %q", p.Key, p.ContainerRef, c.ID))
			}
		}
	}
	for _, p := range m.Payloads {
		if p.ContainerRef == "" && p.SourcePath == "" && p.DownloadURL == "" {
			return errkind.New(errkind.Validation, fmt.Sprintf("payload %q is external but has neither a source path nor a download URL", p.Key))
		}
	}
	return nil
}

// validateSlipstreamPatches ensures every Msi slipstream-patch reference
// resolves to a declared Msp package, and that every Msp package declares
// at least one target product code.
func validateSlipstreamPatches(m *Manifest) error {
	for _, p := range m.Packages {
		if p.Kind != KindMsi || p.Msi == nil {
			continue
		}
		for _, patchID := range p.Msi.SlipstreamMsps {
			found := false
			for _, other := range m.Packages {
				if other.Kind == KindMsp && other.Msp != nil && other.Msp.PatchCode == patchID {
					found = true
					break
				}
			}
			if !found {
				return errkind.New(errkind.Validation, fmt.Sprintf("msi package %q slipstreams undeclared msp patch %q", p.ID, patchID))
			}
		}
	}
	for _, p := range m.Packages {
		if p.Kind != KindMsp || p.Msp == nil {
			continue
		}
		if len(p.Msp.TargetProductCodes) == 0 {
			return errkind.New(errkind.Validation, fmt.Sprintf("msp package %q declares no target product codes", p.ID))
		}
	}
	return nil
}

package normalize

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
)

// Package binds a document-intelligence data package to the category it
// fills.
type Package struct {
	ID       string
	Category string
	apply    func(*model.SubmissionData, model.Value) error
}

// Apply normalizes raw and stores the result in data.
func (p Package) Apply(data *model.SubmissionData, raw model.Value) error {
	return p.apply(data, raw)
}

// Packages lists the data packages fetched for every submission, in fetch
// order.
var Packages = []Package{
	{
		ID:       "elevate-us-common-c0001",
		Category: model.CategoryCommon,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			c, err := Common(raw)
			if err != nil {
				return err
			}
			d.Common = c
			return nil
		},
	},
	{
		ID:       "default-us-admitted-advanced-property-l0001",
		Category: model.CategoryAdvancedProperty,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			c, err := AdvancedProperty(raw)
			if err != nil {
				return err
			}
			d.AdvancedProperty = &c
			return nil
		},
	},
	{
		ID:       "default-us-loss-run-c0001",
		Category: model.CategoryLossRun,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			v, err := LossRun(raw)
			if err != nil {
				return err
			}
			d.LossRun = &v
			return nil
		},
	},
	{
		ID:       "elevate-us-gl-c0001",
		Category: model.CategoryGeneralLiability,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			c, err := GeneralLiability(raw)
			if err != nil {
				return err
			}
			d.GeneralLiability = c
			return nil
		},
	},
	{
		ID:       "elevate-us-property-l0001",
		Category: model.CategoryProperty,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			c, err := Property(raw)
			if err != nil {
				return err
			}
			d.Property = &c
			return nil
		},
	},
	{
		ID:       "elevate-us-admitted-auto-c0001",
		Category: model.CategoryAuto,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			c, err := Auto(raw)
			if err != nil {
				return err
			}
			d.Auto = c
			return nil
		},
	},
	{
		ID:       "elevate-us-admitted-workers-comp-c0001",
		Category: model.CategoryWorkersComp,
		apply: func(d *model.SubmissionData, raw model.Value) error {
			v, err := WorkersComp(raw)
			if err != nil {
				return err
			}
			d.WorkersComp = &v
			return nil
		},
	},
}

// PackageIDs returns the IDs of Packages in order.
func PackageIDs() []string {
	ids := make([]string, len(Packages))
	for i, p := range Packages {
		ids[i] = p.ID
	}
	return ids
}

// Lookup finds a package by ID.
func Lookup(id string) (Package, bool) {
	for _, p := range Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Apply normalizes raw as the package pkgID and stores it in data.
func Apply(data *model.SubmissionData, pkgID string, raw model.Value) error {
	p, ok := Lookup(pkgID)
	if !ok {
		return eris.Errorf("normalize: unknown data package %q", pkgID)
	}
	return p.Apply(data, raw)
}

// AsShapeError unwraps a ShapeError from err.
func AsShapeError(err error) (*ShapeError, bool) {
	var se *ShapeError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

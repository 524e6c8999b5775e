package schema

import (
	"io"

	"gopkg.in/yaml.v3"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

// FieldOverride extends a built-in field for one deployment.
type FieldOverride struct {
	// Fallbacks are appended after the built-in candidates.
	Fallbacks []string `yaml:"fallbacks"`
	Optional  *bool    `yaml:"optional"`
}

// Overrides maps table -> logical key -> override.
type Overrides map[string]map[string]FieldOverride

// LoadOverrides parses a YAML document such as
//
//	jobs:
//	  salary_min_value:
//	    fallbacks: [lohn_min]
func LoadOverrides(r io.Reader) (Overrides, error) {
	var o Overrides
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		if err == io.EOF {
			return Overrides{}, nil
		}
		return nil, jberrors.Wrap(jberrors.ErrSchema, "parse field overrides", err)
	}
	if o == nil {
		o = Overrides{}
	}
	return o, nil
}

// WithOverrides returns a copy of s with the overrides for its table applied.
// Unknown keys are rejected so a typo doesn't silently do nothing.
func (s TableSpec) WithOverrides(o Overrides) (TableSpec, error) {
	out := s.Clone()
	for key, ov := range o[s.Table] {
		idx := -1
		for i := range out.Fields {
			if out.Fields[i].Key == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return TableSpec{}, jberrors.NewError(jberrors.ErrSchema, "override for unknown field "+s.Table+"."+key)
		}
		f := &out.Fields[idx]
		for _, c := range ov.Fallbacks {
			dup := false
			for _, existing := range f.Candidates() {
				if equalFold(existing, c) {
					dup = true
					break
				}
			}
			if !dup {
				f.Fallbacks = append(f.Fallbacks, c)
			}
		}
		if ov.Optional != nil {
			f.Optional = *ov.Optional
		}
	}
	if err := out.Validate(); err != nil {
		return TableSpec{}, err
	}
	return out, nil
}

package schema

import (
	"regexp"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s TableSpec) Validate() error {
	if !nameRe.MatchString(s.Table) {
		return jberrors.NewError(jberrors.ErrSchema, "invalid table name: "+s.Table)
	}
	if len(s.Fields) == 0 {
		return jberrors.NewError(jberrors.ErrSchema, "table spec must have at least one field: "+s.Table)
	}
	keys := make(map[string]bool, len(s.Fields))
	var primaries []string
	for _, f := range s.Fields {
		if !nameRe.MatchString(f.Key) {
			return jberrors.NewError(jberrors.ErrSchema, "invalid field key: "+f.Key)
		}
		if keys[f.Key] {
			return jberrors.NewError(jberrors.ErrSchema, "duplicate field key: "+f.Key)
		}
		keys[f.Key] = true
		if f.Primary == "" {
			return jberrors.NewError(jberrors.ErrSchema, "field has no primary column: "+f.Key)
		}
		for _, c := range f.Candidates() {
			if !nameRe.MatchString(c) {
				return jberrors.NewError(jberrors.ErrSchema, "invalid column name "+c+" for field "+f.Key)
			}
		}
		for _, p := range primaries {
			if equalFold(p, f.Primary) {
				return jberrors.NewError(jberrors.ErrSchema, "primary column claimed twice: "+f.Primary)
			}
		}
		primaries = append(primaries, f.Primary)
		switch f.Kind {
		case "", KindText, KindNumber, KindBool, KindList, KindTimestamp:
		default:
			return jberrors.NewError(jberrors.ErrSchema, "unknown field kind "+string(f.Kind)+" for "+f.Key)
		}
	}
	if !keys[s.Identity] {
		return jberrors.NewError(jberrors.ErrSchema, "identity key is not a field: "+s.Identity)
	}
	for _, group := range [][]string{s.SearchKeys, s.LocationKeys, s.CategoryKeys, s.OrderKeys} {
		for _, k := range group {
			if !keys[k] {
				return jberrors.NewError(jberrors.ErrSchema, "unknown field key referenced: "+k)
			}
		}
	}
	return nil
}

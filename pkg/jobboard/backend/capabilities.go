package backend

type Capabilities struct {
	// Range supports offset-based windows; otherwise only a limit is honoured.
	Range bool
	// Count returns an authoritative filtered row count.
	Count bool
	// ExposesColumns reports the column list on a zero-row probe.
	ExposesColumns bool
	Upsert         bool
}

// Has reports whether every capability set in want is also set in c.
func (c Capabilities) Has(want Capabilities) bool {
	if want.Range && !c.Range {
		return false
	}
	if want.Count && !c.Count {
		return false
	}
	if want.ExposesColumns && !c.ExposesColumns {
		return false
	}
	if want.Upsert && !c.Upsert {
		return false
	}
	return true
}

package schema

const (
	JobsTable      = "jobs"
	CompaniesTable = "companies"

	FreshnessPlaceholder = "Recently posted"
)

func text(key, primary string, optional bool, fallbacks ...string) FieldSpec {
	return FieldSpec{Key: key, Primary: primary, Fallbacks: fallbacks, Optional: optional, Kind: KindText}
}

func typed(kind FieldKind, key, primary string, fallbacks ...string) FieldSpec {
	return FieldSpec{Key: key, Primary: primary, Fallbacks: fallbacks, Optional: true, Kind: kind}
}

var jobs = TableSpec{
	Table:    JobsTable,
	Identity: "id",
	Fields: []FieldSpec{
		text("id", "id", false, "job_id", "uuid"),
		text("title", "title", false, "job_title", "position", "name"),
		text("company_name", "company_name", true, "company", "employer", "company_title"),
		text("company_id", "company_id", true, "employer_id"),
		text("location", "location", true, "city", "job_location", "place"),
		text("canton", "canton", true, "region", "state"),
		text("work_arrangement", "work_arrangement", true, "remote_type", "workplace_type", "work_mode"),
		text("employment_type", "employment_type", true, "job_type", "contract_type"),
		typed(KindNumber, "salary_min_value", "salary_min_value", "salary_min", "salary_min_chf", "salary_minimum", "min_salary"),
		typed(KindNumber, "salary_max_value", "salary_max_value", "salary_max", "salary_max_chf", "salary_maximum", "max_salary"),
		text("salary_currency", "salary_currency", true, "currency"),
		text("description", "description", true, "job_description", "summary"),
		typed(KindList, "requirements", "requirements", "qualifications"),
		typed(KindList, "benefits", "benefits", "perks"),
		typed(KindList, "skills", "skills", "tags", "keywords"),
		typed(KindBool, "is_featured", "is_featured", "featured"),
		typed(KindBool, "is_urgent", "is_urgent", "urgent"),
		text("application_url", "application_url", true, "apply_url", "url"),
		typed(KindTimestamp, "posted_at", "posted_at", "published_at", "date_posted"),
		typed(KindTimestamp, "created_at", "created_at", "inserted_at"),
		typed(KindTimestamp, "updated_at", "updated_at", "modified_at"),
		{Key: "posted_ago", Primary: "posted_ago", Fallbacks: []string{"posted_label", "freshness"}, Optional: true, Kind: KindText, Placeholder: FreshnessPlaceholder},
	},
	SearchKeys:   []string{"title", "company_name", "location"},
	LocationKeys: []string{"location", "canton"},
	CategoryKeys: []string{"work_arrangement", "employment_type"},
	OrderKeys:    []string{"posted_at", "created_at", "updated_at", "id"},
}

var companies = TableSpec{
	Table:    CompaniesTable,
	Identity: "id",
	Fields: []FieldSpec{
		text("id", "id", false, "company_id", "uuid"),
		text("name", "name", false, "company_name", "title"),
		text("industry", "industry", true, "sector", "category"),
		text("location", "location", true, "city", "headquarters", "hq_location"),
		text("canton", "canton", true, "region", "state"),
		text("size", "size", true, "company_size", "employee_count", "employees"),
		text("website", "website", true, "website_url", "homepage", "url"),
		text("logo_url", "logo_url", true, "logo", "logo_path"),
		text("description", "description", true, "about", "summary"),
		typed(KindBool, "is_verified", "is_verified", "verified"),
		typed(KindBool, "is_hiring", "is_hiring", "hiring"),
		typed(KindNumber, "open_positions", "open_positions", "job_count", "open_jobs"),
		typed(KindList, "tags", "tags", "specialties"),
		typed(KindTimestamp, "created_at", "created_at", "inserted_at"),
		typed(KindTimestamp, "updated_at", "updated_at", "modified_at"),
	},
	SearchKeys:   []string{"name", "industry", "location"},
	LocationKeys: []string{"location", "canton"},
	CategoryKeys: []string{"industry", "size"},
	OrderKeys:    []string{"created_at", "updated_at", "id"},
}

func Jobs() TableSpec      { return jobs.Clone() }
func Companies() TableSpec { return companies.Clone() }

// Builtin returns the hand-authored spec for a known table.
func Builtin(table string) (TableSpec, bool) {
	switch table {
	case JobsTable:
		return Jobs(), true
	case CompaniesTable:
		return Companies(), true
	default:
		return TableSpec{}, false
	}
}

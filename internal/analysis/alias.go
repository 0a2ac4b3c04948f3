package analysis

// DefaultAliases maps commit display names seen in practice to contributor logins.
var DefaultAliases = map[string]string{
	"Khiempg":       "Khiempg225868",
	"Bùi Ngọc Hợp":  "hopite601",
	"Vu Quang Dung": "vqdung71104",
}

// AliasResolver maps raw commit author names to canonical contributor identities.
// Lookup is exact-string; unmapped names pass through unchanged.
type AliasResolver struct {
	table map[string]string
}

// NewAliasResolver copies table so later changes by the caller are not observed
func NewAliasResolver(table map[string]string) *AliasResolver {
	cp := make(map[string]string, len(table))
	for raw, canonical := range table {
		cp[raw] = canonical
	}
	return &AliasResolver{table: cp}
}

// Canonicalize returns the canonical identity for raw
func (r *AliasResolver) Canonicalize(raw string) string {
	if r == nil {
		return raw
	}
	if canonical, ok := r.table[raw]; ok {
		return canonical
	}
	return raw
}

// KnownIdentities builds the set of canonical identities for the contributor
// listing. Each login is included both as-is and through the alias table.
func (r *AliasResolver) KnownIdentities(contributors []ContributorSummary) map[string]struct{} {
	known := make(map[string]struct{}, len(contributors))
	for _, c := range contributors {
		if c.Login == "" {
			continue
		}
		known[c.Login] = struct{}{}
		known[r.Canonicalize(c.Login)] = struct{}{}
	}
	return known
}

// Len returns the number of aliases in the table
func (r *AliasResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}

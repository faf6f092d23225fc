package catalog

import (
	"sort"
	"strings"
)

type ResolutionKind int

const (
	Resolved ResolutionKind = iota
	AllCountry
	Unresolved
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case AllCountry:
		return "all_country"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// RegionResolution is the outcome of resolving a free-text region clause.
// Regions is set for Resolved, Token and Candidates for Unresolved.
type RegionResolution struct {
	Kind       ResolutionKind
	Regions    []string
	Token      string
	Candidates []string
}

type AliasIndex struct {
	catalog *Catalog
}

// Resolve walks whitespace-separated tokens and stops at the first token it
// cannot map to exactly one region. Resolved regions keep input order and
// duplicates.
func (a *AliasIndex) Resolve(text string) RegionResolution {
	ids := []RegionID{}
	for _, token := range strings.Fields(text) {
		normalized := strings.ToLower(token)
		if normalized == a.catalog.countryKeyword {
			return RegionResolution{Kind: AllCountry}
		}
		if id, ok := a.catalog.aliases[normalized]; ok {
			ids = append(ids, id)
			continue
		}
		matches := a.prefixMatches(normalized)
		if len(matches) != 1 {
			return RegionResolution{
				Kind:       Unresolved,
				Token:      token,
				Candidates: a.codesSorted(matches),
			}
		}
		ids = append(ids, matches[0])
	}

	regions := make([]string, 0, len(ids))
	for _, id := range ids {
		regions = append(regions, a.catalog.codes[id])
	}
	return RegionResolution{Kind: Resolved, Regions: regions}
}

// prefixMatches returns the distinct regions owning an alias that starts with prefix.
func (a *AliasIndex) prefixMatches(prefix string) []RegionID {
	aliases := a.catalog.sortedAliases
	start := sort.SearchStrings(aliases, prefix)
	seen := map[RegionID]struct{}{}
	out := []RegionID{}
	for index := start; index < len(aliases); index++ {
		alias := aliases[index]
		if !strings.HasPrefix(alias, prefix) {
			break
		}
		id := a.catalog.aliases[alias]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (a *AliasIndex) codesSorted(ids []RegionID) []string {
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		codes = append(codes, a.catalog.codes[id])
	}
	sort.Strings(codes)
	return codes
}

type TagResolution struct {
	Tags []string
	// BadToken holds the first unknown token exactly as the user typed it.
	BadToken string
}

func (r TagResolution) OK() bool {
	return r.BadToken == ""
}

type TagValidator struct {
	catalog *Catalog
}

func (v *TagValidator) Resolve(text string) TagResolution {
	tags := []string{}
	for _, token := range strings.Fields(text) {
		canonical, ok := v.catalog.tagSet[strings.ToUpper(token)]
		if !ok {
			return TagResolution{BadToken: token}
		}
		tags = append(tags, canonical)
	}
	return TagResolution{Tags: tags}
}

package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const DefaultCountryKeyword = "country"

var ErrEmptyCatalog = errors.New("region catalog is empty")

// RegionID addresses a canonical region code inside a Catalog.
type RegionID int

type Region struct {
	Code    string   `json:"code" yaml:"code"`
	Aliases []string `json:"aliases" yaml:"aliases"`
}

// Catalog is built once at startup and never mutated afterwards. All strings
// live in the catalog's own tables; lookups hand out RegionID handles.
type Catalog struct {
	codes          []string
	aliases        map[string]RegionID
	sortedAliases  []string
	regionAliases  [][]string
	tags           []string
	tagSet         map[string]string
	countryKeyword string

	aliasIndex   *AliasIndex
	tagValidator *TagValidator
}

type Option func(*Catalog)

func WithCountryKeyword(keyword string) Option {
	return func(c *Catalog) {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			c.countryKeyword = keyword
		}
	}
}

func New(regions []Region, tags []string, opts ...Option) (*Catalog, error) {
	if len(regions) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		codes:          make([]string, 0, len(regions)),
		aliases:        map[string]RegionID{},
		regionAliases:  make([][]string, 0, len(regions)),
		tagSet:         map[string]string{},
		countryKeyword: DefaultCountryKeyword,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	seenCodes := map[string]struct{}{}
	for _, region := range regions {
		code := strings.TrimSpace(region.Code)
		if code == "" {
			return nil, fmt.Errorf("region code is required")
		}
		if _, exists := seenCodes[code]; exists {
			return nil, fmt.Errorf("duplicate region code %q", code)
		}
		seenCodes[code] = struct{}{}

		id := RegionID(len(c.codes))
		c.codes = append(c.codes, code)

		owned := []string{}
		for _, alias := range append([]string{code}, region.Aliases...) {
			normalized := strings.ToLower(strings.TrimSpace(alias))
			if normalized == "" {
				continue
			}
			if _, taken := c.aliases[normalized]; taken {
				continue
			}
			c.aliases[normalized] = id
			owned = append(owned, normalized)
		}
		c.regionAliases = append(c.regionAliases, owned)
	}

	c.sortedAliases = make([]string, 0, len(c.aliases))
	for alias := range c.aliases {
		c.sortedAliases = append(c.sortedAliases, alias)
	}
	sort.Strings(c.sortedAliases)

	for _, tag := range tags {
		normalized := strings.ToUpper(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, exists := c.tagSet[normalized]; exists {
			continue
		}
		c.tagSet[normalized] = normalized
		c.tags = append(c.tags, normalized)
	}

	c.aliasIndex = &AliasIndex{catalog: c}
	c.tagValidator = &TagValidator{catalog: c}
	return c, nil
}

func (c *Catalog) AliasIndex() *AliasIndex {
	return c.aliasIndex
}

func (c *Catalog) TagValidator() *TagValidator {
	return c.tagValidator
}

// Code returns the canonical code behind a handle.
func (c *Catalog) Code(id RegionID) string {
	if int(id) < 0 || int(id) >= len(c.codes) {
		return ""
	}
	return c.codes[id]
}

// Codes lists every canonical region code in catalog order.
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.codes...)
}

func (c *Catalog) Tags() []string {
	return append([]string(nil), c.tags...)
}

func (c *Catalog) CountryKeyword() string {
	return c.countryKeyword
}

func (c *Catalog) Regions() []Region {
	out := make([]Region, 0, len(c.codes))
	for index, code := range c.codes {
		out = append(out, Region{
			Code:    code,
			Aliases: append([]string(nil), c.regionAliases[index]...),
		})
	}
	return out
}

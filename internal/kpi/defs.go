// Package kpi computes run-level metrics through the query engine and
// records them as immutable snapshot events. Base KPIs are single-value
// SQL queries against a run's schema; derived KPIs are integer
// basis-point ratios computed from base values.
package kpi

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cratelabs/discolake/internal/domain"
)

// schemaPlaceholder marks where a query template receives the run schema.
const schemaPlaceholder = "{schema}"

// Definition is one base KPI: a query returning a single BIGINT.
type Definition struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// Render substitutes the run schema into the query template.
func (d Definition) Render(schemaName string) string {
	return strings.ReplaceAll(d.Query, schemaPlaceholder, "hive."+schemaName)
}

func countAll(table string) string {
	return "SELECT CAST(count(*) AS BIGINT) FROM " + schemaPlaceholder + "." + table
}

func countDistinct(column, table string) string {
	return "SELECT CAST(count(DISTINCT " + column + ") AS BIGINT) FROM " + schemaPlaceholder + "." + table
}

// builtinDefinitions covers the core tables plus the optional warehouse
// tables. Warehouse queries fail on runs without those tables; the
// recorder records that as a failed computation rather than guessing.
var builtinDefinitions = []Definition{
	{Name: "n_releases_distinct", Query: countDistinct("release_id", "releases_ref_v6")},
	{Name: "rows_releases_ref_v6", Query: countAll("releases_ref_v6")},
	{Name: "n_artists_distinct", Query: countDistinct("artist_id", "artists_v1_typed")},
	{Name: "rows_artists_v1_typed", Query: countAll("artists_v1_typed")},
	{Name: "n_labels_distinct", Query: countDistinct("label_id", "labels_ref_v10")},
	{Name: "rows_labels_ref_v10", Query: countAll("labels_ref_v10")},
	{Name: "n_masters_distinct", Query: countDistinct("master_id", "masters_v1_typed")},
	{Name: "rows_masters_v1_typed", Query: countAll("masters_v1_typed")},

	{Name: "rows_release_artists_v1", Query: countAll("release_artists_v1")},
	{Name: "rows_release_label_xref_v1", Query: countAll("release_label_xref_v1")},

	{Name: "n_release_artist_links", Query: countAll("release_artists_v1")},
	{Name: "n_releases_with_artist_link", Query: countDistinct("release_id", "release_artists_v1")},

	{Name: "n_release_label_links", Query: countAll("release_label_xref_v1")},
	{Name: "n_releases_with_label_link", Query: countDistinct("release_id", "release_label_xref_v1")},
	{Name: "n_label_norm_distinct", Query: countDistinct("label_norm", "release_label_xref_v1")},

	{Name: "n_release_style_links", Query: countAll("release_style_xref_v1")},
	{Name: "n_releases_with_style", Query: countDistinct("release_id", "release_style_xref_v1")},
	{Name: "n_style_norm_distinct", Query: countDistinct("style_norm", "release_style_xref_v1")},

	{Name: "n_release_genre_links", Query: countAll("release_genre_xref_v1")},
	{Name: "n_releases_with_genre", Query: countDistinct("release_id", "release_genre_xref_v1")},
	{Name: "n_genre_norm_distinct", Query: countDistinct("genre_norm", "release_genre_xref_v1")},

	{Name: "n_labels_in_counts_table", Query: countAll("label_release_counts_v1")},
	{Name: "label_counts_total_releases", Query: "SELECT CAST(coalesce(sum(n_total_releases), 0) AS BIGINT) FROM " + schemaPlaceholder + ".label_release_counts_v1"},
	{Name: "top_label_releases", Query: "SELECT CAST(coalesce(max(n_total_releases), 0) AS BIGINT) FROM " + schemaPlaceholder + ".label_release_counts_v1"},
	{Name: "top10_labels_releases", Query: "SELECT CAST(coalesce(sum(n_total_releases), 0) AS BIGINT) FROM (\n  SELECT n_total_releases\n  FROM " + schemaPlaceholder + ".label_release_counts_v1\n  ORDER BY n_total_releases DESC\n  LIMIT 10\n)"},
}

// BuiltinDefinitions returns a copy of the built-in base KPI set.
func BuiltinDefinitions() []Definition {
	out := make([]Definition, len(builtinDefinitions))
	copy(out, builtinDefinitions)
	return out
}

type definitionsFile struct {
	KPIs []Definition `yaml:"kpis"`
}

// LoadDefinitions merges the optional YAML file at path into the builtin
// set: entries with a known name override the builtin query, new names
// append in file order. A missing file yields the builtin set unchanged.
func LoadDefinitions(path string) ([]Definition, error) {
	defs := BuiltinDefinitions()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defs, nil
		}
		return nil, domain.Wrap(domain.KindConfiguration, "read kpi definitions", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "parse kpi definitions", err)
	}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Name] = i
	}
	for _, def := range file.KPIs {
		def.Name = strings.TrimSpace(def.Name)
		def.Query = strings.TrimSpace(def.Query)
		if def.Name == "" || def.Query == "" {
			return nil, domain.E(domain.KindConfiguration, "kpi definition needs both name and query")
		}
		if !strings.Contains(def.Query, schemaPlaceholder) {
			return nil, domain.E(domain.KindConfiguration, "kpi %s: query must reference %s", def.Name, schemaPlaceholder)
		}
		if i, ok := index[def.Name]; ok {
			defs[i] = def
			continue
		}
		index[def.Name] = len(defs)
		defs = append(defs, def)
	}
	return defs, nil
}

// SafeBP is the integer basis-point ratio: 10000 means 100.00%. A
// non-positive denominator yields 0.
func SafeBP(numer, denom int64) int64 {
	if denom <= 0 {
		return 0
	}
	return numer * 10000 / denom
}

type derivedDef struct {
	name  string
	numer string
	denom string
}

var derivedDefs = []derivedDef{
	{name: "avg_artists_per_release_bp", numer: "n_release_artist_links", denom: "n_releases_distinct"},
	{name: "pct_releases_with_artist_link_bp", numer: "n_releases_with_artist_link", denom: "n_releases_distinct"},
	{name: "avg_labels_per_release_bp", numer: "n_release_label_links", denom: "n_releases_distinct"},
	{name: "pct_releases_with_label_link_bp", numer: "n_releases_with_label_link", denom: "n_releases_distinct"},
	{name: "avg_styles_per_release_bp", numer: "n_release_style_links", denom: "n_releases_distinct"},
	{name: "pct_releases_with_style_bp", numer: "n_releases_with_style", denom: "n_releases_distinct"},
	{name: "avg_genres_per_release_bp", numer: "n_release_genre_links", denom: "n_releases_distinct"},
	{name: "pct_releases_with_genre_bp", numer: "n_releases_with_genre", denom: "n_releases_distinct"},
	{name: "top_label_share_bp", numer: "top_label_releases", denom: "label_counts_total_releases"},
	{name: "top10_labels_share_bp", numer: "top10_labels_releases", denom: "label_counts_total_releases"},
}

type derivedValue struct {
	name  string
	value int64
}

// deriveAll computes every derived KPI whose numerator and denominator
// were both measured successfully with a positive denominator.
func deriveAll(base map[string]int64) []derivedValue {
	var out []derivedValue
	for _, def := range derivedDefs {
		numer, numerOK := base[def.numer]
		denom, denomOK := base[def.denom]
		if !numerOK || !denomOK || denom <= 0 {
			continue
		}
		out = append(out, derivedValue{name: def.name, value: SafeBP(numer, denom)})
	}
	return out
}

package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/cratelabs/discolake/internal/domain"
)

// Catalog is the engine catalog the per-run schemas live under.
const Catalog = "hive"

// RunBase is the engine-visible file location of a run directory. The
// engine may see the lake under a different mount than this process, so
// the base is built from the configured engine lake path, not LakeRoot.
func RunBase(engineLakePath string, id domain.RunID) string {
	return "file:" + path.Join(engineLakePath, domain.RunsDirName, id.String())
}

// MetaLocation is where the engine keeps schema metadata. It lives under
// _meta so dropping a run directory never orphans schema state.
func MetaLocation(engineLakePath, schemaName string) string {
	return "file:" + path.Join(engineLakePath, "_meta", "discogs_history", schemaName)
}

// SchemaStatement creates the per-run schema. Schema names are derived
// from validated run ids, so interpolation is safe here.
func SchemaStatement(schemaName, engineLakePath string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s WITH (location='%s')",
		Catalog, schemaName, MetaLocation(engineLakePath, schemaName))
}

type tableDef struct {
	name    string
	dir     string
	columns string
}

var coreTables = []tableDef{
	{name: "artists_v1_typed", dir: "artists_v1_typed", columns: `
  artist_id      BIGINT,
  name           VARCHAR,
  realname       VARCHAR,
  profile        VARCHAR,
  data_quality   VARCHAR,
  urls           VARCHAR,
  namevariations VARCHAR,
  aliases        VARCHAR`},
	{name: "artist_aliases_v1_typed", dir: "artist_aliases_v1_typed", columns: `
  artist_id  BIGINT,
  alias_id   BIGINT,
  alias_name VARCHAR`},
	{name: "artist_memberships_v1_typed", dir: "artist_memberships_v1_typed", columns: `
  group_id    BIGINT,
  group_name  VARCHAR,
  member_id   BIGINT,
  member_name VARCHAR`},
	{name: "masters_v1_typed", dir: "masters_v1_typed", columns: `
  master_id         BIGINT,
  main_release_id   BIGINT,
  title             VARCHAR,
  year              BIGINT,
  master_artists    VARCHAR,
  master_artist_ids VARCHAR,
  genres            VARCHAR,
  styles            VARCHAR,
  data_quality      VARCHAR`},
	{name: "releases_ref_v6", dir: "releases_v6", columns: `
  release_id           BIGINT,
  master_id            BIGINT,
  title                VARCHAR,
  artists              VARCHAR,
  labels               VARCHAR,
  label_catnos         VARCHAR,
  country              VARCHAR,
  formats              VARCHAR,
  genres               VARCHAR,
  styles               VARCHAR,
  credits_flat         VARCHAR,
  status               VARCHAR,
  released             VARCHAR,
  data_quality         VARCHAR,
  format_qtys          VARCHAR,
  format_texts         VARCHAR,
  format_descriptions  VARCHAR,
  identifiers_flat     VARCHAR`},
	{name: "labels_ref_v10", dir: "labels_v10", columns: `
  label_id           BIGINT,
  name               VARCHAR,
  profile            VARCHAR,
  contact_info       VARCHAR,
  data_quality       VARCHAR,
  parent_label_id    BIGINT,
  parent_label_name  VARCHAR,
  urls_csv           VARCHAR,
  sublabel_ids_csv   VARCHAR,
  sublabel_names_csv VARCHAR`},
}

// Canonical views give analytical queries stable names over the typed
// tables, so table versions can advance without breaking consumers.
var coreViews = []string{
	"CREATE OR REPLACE VIEW %[1]s.%[2]s.artists_v1 AS\nSELECT * FROM %[1]s.%[2]s.artists_v1_typed",
	"CREATE OR REPLACE VIEW %[1]s.%[2]s.artist_aliases_v1 AS\nSELECT * FROM %[1]s.%[2]s.artist_aliases_v1_typed",
	"CREATE OR REPLACE VIEW %[1]s.%[2]s.artist_memberships_v1 AS\nSELECT * FROM %[1]s.%[2]s.artist_memberships_v1_typed",
	"CREATE OR REPLACE VIEW %[1]s.%[2]s.masters_v1 AS\nSELECT * FROM %[1]s.%[2]s.masters_v1_typed",
	"CREATE OR REPLACE VIEW %[1]s.%[2]s.artist_memberships_v1_typed_dedup AS\nSELECT DISTINCT group_id, group_name, member_id, member_name\nFROM %[1]s.%[2]s.artist_memberships_v1_typed",
}

var warehouseTables = map[string][]tableDef{
	"warehouse_discogs/artist_name_map_v1": {{name: "artist_name_map_v1", dir: "warehouse_discogs/artist_name_map_v1", columns: `
  norm_name VARCHAR,
  artist_id BIGINT`}},
	"warehouse_discogs/release_artists_v1": {{name: "release_artists_v1", dir: "warehouse_discogs/release_artists_v1", columns: `
  release_id  BIGINT,
  artist_norm VARCHAR`}},
	"warehouse_discogs/release_label_xref_v1": {{name: "release_label_xref_v1", dir: "warehouse_discogs/release_label_xref_v1", columns: `
  release_id BIGINT,
  label_name VARCHAR,
  label_norm VARCHAR`}},
	"warehouse_discogs/label_release_counts_v1": {{name: "label_release_counts_v1", dir: "warehouse_discogs/label_release_counts_v1", columns: `
  label_norm        VARCHAR,
  label_name_sample VARCHAR,
  n_total_releases  BIGINT`}},
	"warehouse_discogs/release_style_xref_v1": {{name: "release_style_xref_v1", dir: "warehouse_discogs/release_style_xref_v1", columns: `
  release_id BIGINT,
  style      VARCHAR,
  style_norm VARCHAR`}},
	"warehouse_discogs/release_genre_xref_v1": {{name: "release_genre_xref_v1", dir: "warehouse_discogs/release_genre_xref_v1", columns: `
  release_id BIGINT,
  genre      VARCHAR,
  genre_norm VARCHAR`}},
}

var warehouseViews = map[string][]string{
	"warehouse_discogs/release_label_xref_v1": {
		"CREATE OR REPLACE VIEW %[1]s.%[2]s.release_label_xref_v1_canon AS\nSELECT release_id, label_name, label_norm\nFROM %[1]s.%[2]s.release_label_xref_v1",
		"CREATE OR REPLACE VIEW %[1]s.%[2]s.release_label_xref_v1_dedup AS\nSELECT DISTINCT release_id, label_name, label_norm\nFROM %[1]s.%[2]s.release_label_xref_v1",
	},
}

func externalTable(schemaName, runBase string, def tableDef) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s.%s (%s\n)\nWITH (external_location='%s', format='PARQUET')",
		Catalog, schemaName, def.name, def.columns, runBase+"/"+def.dir)
}

// CoreStatements returns the idempotent DDL for the six required
// datasets plus the canonical views, in execution order.
func CoreStatements(schemaName, runBase string) []string {
	stmts := make([]string, 0, len(coreTables)+len(coreViews))
	for _, def := range coreTables {
		stmts = append(stmts, externalTable(schemaName, runBase, def))
	}
	for _, view := range coreViews {
		stmts = append(stmts, fmt.Sprintf(view, Catalog, schemaName))
	}
	return stmts
}

// WarehouseStatements returns the DDL for one optional warehouse
// dataset, keyed by its run-relative directory. Unknown datasets report
// ok=false.
func WarehouseStatements(schemaName, runBase, dataset string) ([]string, bool) {
	defs, ok := warehouseTables[dataset]
	if !ok {
		return nil, false
	}
	var stmts []string
	for _, def := range defs {
		stmts = append(stmts, externalTable(schemaName, runBase, def))
	}
	for _, view := range warehouseViews[dataset] {
		stmts = append(stmts, fmt.Sprintf(view, Catalog, schemaName))
	}
	return stmts, true
}

// CoreTableFor maps a required dataset directory to its engine table
// name. Most directories match their table, the reference tables do not.
func CoreTableFor(dataset string) (string, bool) {
	for _, def := range coreTables {
		if def.dir == dataset {
			return def.name, true
		}
	}
	return "", false
}

// QualifiedTable renders catalog.schema.table for KPI query templates.
func QualifiedTable(schemaName, table string) string {
	return strings.Join([]string{Catalog, schemaName, table}, ".")
}

// Package lake knows the on-disk layout of the lakehouse: the immutable
// run directories, the datasets they must contain, and the single active
// pointer that publishes one run to consumers.
package lake

// CoreDatasets are the typed datasets every run must carry. Validation and
// promotion both gate on this set.
var CoreDatasets = []string{
	"artists_v1_typed",
	"artist_aliases_v1_typed",
	"artist_memberships_v1_typed",
	"masters_v1_typed",
	"releases_v6",
	"labels_v10",
}

// SentinelDataset is the designated always-required dataset probed first as
// a cheap existence check before the full required-set pass.
const SentinelDataset = "releases_v6"

// WarehouseDatasets are derived analytical datasets. They are optional:
// registered and measured only when their directories exist.
var WarehouseDatasets = []string{
	"warehouse_discogs/artist_name_map_v1",
	"warehouse_discogs/release_artists_v1",
	"warehouse_discogs/release_label_xref_v1",
	"warehouse_discogs/label_release_counts_v1",
	"warehouse_discogs/release_style_xref_v1",
	"warehouse_discogs/release_genre_xref_v1",
}

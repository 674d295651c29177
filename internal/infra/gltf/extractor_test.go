package gltf

import (
	"io"
	"log/slog"
	"testing"

	"github.com/bryanwahyu/defect-tracker/internal/domain/snapshots"
)

func newTestExtractor() *Extractor {
	return NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []snapshots.Snapshot
	}{
		{
			name: "extras object with coordinate map",
			doc:  `{"nodes":[{"name":"n0","extras":{"Snapshot":{"id":"S1","coordinates":{"x":1,"y":2,"z":3}}}}]}`,
			want: []snapshots.Snapshot{{ID: "S1", Label: "n0", Coordinates: snapshots.Coordinates{X: 1, Y: 2, Z: 3}}},
		},
		{
			name: "name fallback without translation yields nothing",
			doc:  `{"nodes":[{"name":"Room/Snapshot_07"}]}`,
			want: []snapshots.Snapshot{},
		},
		{
			name: "name fallback uses translation",
			doc:  `{"nodes":[{"name":"Room/Snapshot_07","translation":[4.5,-1,0.25]}]}`,
			want: []snapshots.Snapshot{{ID: "Snapshot_07", Label: "Room/Snapshot_07", Coordinates: snapshots.Coordinates{X: 4.5, Y: -1, Z: 0.25}}},
		},
		{
			name: "unparseable extras string is skipped",
			doc:  `{"nodes":[{"name":"mesh","extras":"{not json"}]}`,
			want: []snapshots.Snapshot{},
		},
		{
			name: "duplicate ids are kept",
			doc: `{"nodes":[
				{"extras":{"Snapshot":{"id":"A","coordinates":[1,1,1]}}},
				{"extras":{"snapshot":{"id":"A","coordinates":[2,2,2]}}}
			]}`,
			want: []snapshots.Snapshot{
				{ID: "A", Label: "Snapshot", Coordinates: snapshots.Coordinates{X: 1, Y: 1, Z: 1}},
				{ID: "A", Label: "Snapshot", Coordinates: snapshots.Coordinates{X: 2, Y: 2, Z: 2}},
			},
		},
		{
			name: "extras and snapshot encoded as JSON strings",
			doc:  `{"nodes":[{"name":"n","extras":"{\"Snapshot\":\"{\\\"Id\\\":\\\"S9\\\",\\\"label\\\":\\\"crack\\\",\\\"Coordinates\\\":{\\\"X\\\":\\\"1.5\\\",\\\"Y\\\":2,\\\"Z\\\":3}}\"}"}]}`,
			want: []snapshots.Snapshot{{ID: "S9", Label: "crack", Coordinates: snapshots.Coordinates{X: 1.5, Y: 2, Z: 3}}},
		},
		{
			name: "coordinate map with bad value skips the node despite translation",
			doc:  `{"nodes":[{"translation":[1,2,3],"extras":{"Snapshot":{"id":"B","coordinates":{"x":"abc","y":1,"z":1}}}}]}`,
			want: []snapshots.Snapshot{},
		},
		{
			name: "nan coordinate skips the node",
			doc:  `{"nodes":[{"extras":{"Snapshot":{"id":"N","coordinates":{"x":"nan","y":1,"z":1}}}}]}`,
			want: []snapshots.Snapshot{},
		},
		{
			name: "infinite coordinates skip the node",
			doc: `{"nodes":[
				{"extras":{"Snapshot":{"id":"I1","coordinates":["inf",1,1]}}},
				{"extras":{"Snapshot":{"id":"I2","coordinates":{"x":1,"y":"-Infinity","z":1}}}},
				{"extras":{"Snapshot":{"id":"I3","coordinates":[1e999,1,1]}}},
				{"extras":{"Snapshot":{"id":"OK","coordinates":[1,2,3]}}}
			]}`,
			want: []snapshots.Snapshot{{ID: "OK", Label: "Snapshot", Coordinates: snapshots.Coordinates{X: 1, Y: 2, Z: 3}}},
		},
		{
			name: "zero coordinates are valid",
			doc:  `{"nodes":[{"extras":{"Snapshot":{"id":"Z","coordinates":{"x":0,"y":0,"z":0}}}}]}`,
			want: []snapshots.Snapshot{{ID: "Z", Label: "Snapshot", Coordinates: snapshots.Coordinates{}}},
		},
		{
			name: "short coordinate array falls back to translation",
			doc:  `{"nodes":[{"name":"t","translation":[7,8,9],"extras":{"Snapshot":{"coordinates":[1,2]}}}]}`,
			want: []snapshots.Snapshot{{ID: "t", Label: "t", Coordinates: snapshots.Coordinates{X: 7, Y: 8, Z: 9}}},
		},
		{
			name: "translation must have exactly three components",
			doc:  `{"nodes":[{"name":"Snapshot_1","translation":[1,2,3,4]}]}`,
			want: []snapshots.Snapshot{},
		},
		{
			name: "synthetic id uses node position",
			doc: `{"nodes":[
				{"name":"plain"},
				{"extras":{"Snapshot":{"description":"water stain","coordinates":[1,2,3]}}}
			]}`,
			want: []snapshots.Snapshot{{ID: "snapshot_1", Label: "water stain", Coordinates: snapshots.Coordinates{X: 1, Y: 2, Z: 3}}},
		},
		{
			name: "numeric id is stringified",
			doc:  `{"nodes":[{"extras":{"Snapshot":{"id":42,"coordinates":[1,2,3]}}}]}`,
			want: []snapshots.Snapshot{{ID: "42", Label: "Snapshot", Coordinates: snapshots.Coordinates{X: 1, Y: 2, Z: 3}}},
		},
		{
			name: "non-mapping extras fall back to name",
			doc:  `{"nodes":[{"name":"A/B/Snapshot_3","extras":[1,2],"translation":[0,1,0]}]}`,
			want: []snapshots.Snapshot{{ID: "Snapshot_3", Label: "A/B/Snapshot_3", Coordinates: snapshots.Coordinates{Y: 1}}},
		},
		{
			name: "document without nodes",
			doc:  `{"asset":{"version":"2.0"}}`,
			want: []snapshots.Snapshot{},
		},
	}

	e := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract([]byte(tt.doc))
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() returned %d records, want %d: %#v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("record %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractFileMissing(t *testing.T) {
	if _, err := newTestExtractor().ExtractFile("does-not-exist.glb"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

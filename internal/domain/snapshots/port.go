package snapshots

// Source reads the snapshots embedded in a scan file (.glb or .gltf).
type Source interface {
	ExtractFile(path string) ([]Snapshot, error)
}

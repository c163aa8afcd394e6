package collections

// Collection is a catalog entry for a vector collection. Only the
// identity and shape live here; vectors and indexes are managed by the
// query engine.
type Collection struct {
	ID        uint32
	Name      string
	Dimension uint32
	Metric    string
}

package persistence

// Persistence bundles the three store interfaces so workers can depend on a
// single abstraction.
type Persistence struct {
	Events    EventStore
	Contracts ContractStore
	Cursors   CursorStore
}

// Package typebridge is the root of a Go ORM for TypeDB 3.x.
//
// Declare your graph schema as Go structs with struct tags and get typed
// CRUD managers, a lookup-filter DSL, a chainable query builder,
// aggregation, schema generation, and migrations on top of a pluggable
// transactional transport.
//
// The module is organized into five packages:
//
//   - [github.com/typebridge/typebridge/ast] — TypeQL query tree and renderer
//   - [github.com/typebridge/typebridge/bridge] — ORM core: models, managers, queries, migrations
//   - [github.com/typebridge/typebridge/driver] — HTTP transport to TypeDB 3.x
//   - [github.com/typebridge/typebridge/bridgegen] — code generator: TypeQL schema to Go structs
//   - [github.com/typebridge/typebridge/schemalog] — local journal of applied schema revisions
//
// Everything except the driver compiles and tests without a running
// database.
package typebridge

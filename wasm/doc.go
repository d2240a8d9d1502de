// Package wasm decodes, validates, and encodes core WebAssembly binary
// modules for the execution harness.
//
// The package is deliberately scoped to the core (MVP) format: function
// types, imports, tables, memories, globals, exports, start function,
// element and data segments, and function bodies. Extended proposals
// (GC types, exception tags, memory64, components) are rejected at
// decode time.
//
// # Decoding
//
//	m, err := wasm.ParseModule(data, wasm.OriginWasm)
//
// ParseModule checks the header and section structure. It does NOT
// verify function bodies; body verification is deferred to the point a
// body is about to execute. A decoded Module is immutable and aliases
// the input buffer: FuncBody.Code is a window into the original bytes,
// with its absolute range recorded in CodeStart/CodeEnd.
//
// # Validation
//
//	err := m.Validate()
//
// Validate performs index-space validation: every type, function,
// table, memory, and global reference must land inside its index space,
// and export names must be unique.
//
// # Encoding
//
// Module.Encode serializes a module back to binary. The harness test
// suites build modules programmatically and feed the encoded bytes to
// the decode and execution paths.
package wasm

// Package engine hosts compiled module execution on wazero.
//
// The engine is the compiled counterpart of the interpreter: modules
// are compiled and instantiated through a shared wazero runtime, and
// exported functions are resolved and invoked through the wazero api
// surface. Instance names are generated per instantiation so the same
// module can be instantiated repeatedly.
package engine

// Package internal holds token primitives shared by the engine's stores.
// Nothing here is part of the public API.
package internal

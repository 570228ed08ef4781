// Package languages registers the built-in tree-sitter grammars.
package languages

import "codescout/internal/chunker"

// RegisterAll installs every built-in grammar into the registry.
func RegisterAll(r *chunker.Registry) {
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterPython(r)
	RegisterRust(r)
	RegisterJava(r)
}

package languages

import (
	"codescout/internal/chunker"

	"github.com/smacker/go-tree-sitter/rust"
)

func RegisterRust(r *chunker.Registry) {
	r.Register("rust", &chunker.LanguageSpec{
		Language: rust.GetLanguage(),
		Query: `
			(function_item name: (identifier) @name) @chunk
			(struct_item name: (type_identifier) @name) @chunk
			(enum_item name: (type_identifier) @name) @chunk
			(trait_item name: (type_identifier) @name) @chunk
			(impl_item) @chunk
		`,
		Extensions: []string{"rs"},
	})
}

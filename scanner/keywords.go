package scanner

import (
	"github.com/cloudcmds/lox/token"
)

// Keyword recognition uses a perfect hash over the 16 reserved words. The
// hash (first + 5*last + len) mod 32 maps every keyword to a distinct slot;
// a final string comparison rejects non-keyword identifiers that land on an
// occupied slot.

type keyword struct {
	word string
	typ  token.Type
}

var keywords [32]keyword

func init() {
	for _, kw := range []keyword{
		{"and", token.And},
		{"class", token.Class},
		{"else", token.Else},
		{"false", token.False},
		{"for", token.For},
		{"fun", token.Fun},
		{"if", token.If},
		{"nil", token.Nil},
		{"or", token.Or},
		{"print", token.Print},
		{"return", token.Return},
		{"super", token.Super},
		{"this", token.This},
		{"true", token.True},
		{"var", token.Var},
		{"while", token.While},
	} {
		slot := keywordHash(kw.word)
		if keywords[slot].word != "" {
			panic("keyword hash collision: " + kw.word)
		}
		keywords[slot] = kw
	}
}

func keywordHash(word string) int {
	return (int(word[0]) + 5*int(word[len(word)-1]) + len(word)) & 31
}

func lookupKeyword(word string) token.Type {
	kw := keywords[keywordHash(word)]
	if kw.word == word {
		return kw.typ
	}
	return token.Identifier
}

package syntax

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Canonical language names.
const (
	LangC   = "c"
	LangCPP = "cpp"
)

// extToLanguage maps file extensions to canonical language names. Headers
// default to C; a unit's compiler flags may promote them to C++.
var extToLanguage = map[string]string{
	".c":   LangC,
	".h":   LangC,
	".cc":  LangCPP,
	".cpp": LangCPP,
	".cxx": LangCPP,
	".c++": LangCPP,
	".hh":  LangCPP,
	".hpp": LangCPP,
	".hxx": LangCPP,
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			LangC:   c.GetLanguage(),
			LangCPP: cpp.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
// The upper-case ".C" extension is C++ by compiler convention.
func LanguageForFile(path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext == ".C" || ext == ".H" {
		return LangCPP, true
	}
	lang, ok := extToLanguage[strings.ToLower(ext)]
	return lang, ok
}

// IsSource reports whether path has a C or C++ extension.
func IsSource(path string) bool {
	_, ok := LanguageForFile(path)
	return ok
}

// GrammarForLanguage returns the tree-sitter Language for a canonical
// language name. Returns (nil, false) if the language is not supported.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

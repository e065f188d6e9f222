package syntax

import (
	"path/filepath"
	"strings"
)

// CompileUnit is one translation unit to parse: a source file plus the
// compiler arguments it is built with.
//
// File may be empty when the path is embedded in Arguments, as it is for
// entries read from a compilation database. Directory is the working
// directory the arguments are relative to; empty means the process's
// working directory.
type CompileUnit struct {
	File      string
	Arguments []string
	Directory string
}

// SourcePath returns the path of the file to parse. When File is empty the
// path is recovered from Arguments: the source operand following "-c" wins,
// otherwise the last argument with a C/C++ extension that is not the value
// of an option such as "-o".
func (u CompileUnit) SourcePath() string {
	if u.File != "" {
		return u.abs(u.File)
	}

	var last string
	for i := 0; i < len(u.Arguments); i++ {
		arg := u.Arguments[i]
		switch {
		case arg == "-c" && i+1 < len(u.Arguments) && IsSource(u.Arguments[i+1]):
			return u.abs(u.Arguments[i+1])
		case takesValue(arg):
			i++
			continue
		case i == 0 || strings.HasPrefix(arg, "-"):
			continue
		case IsSource(arg):
			last = arg
		}
	}
	if last == "" {
		return ""
	}
	return u.abs(last)
}

// Language returns the canonical language of the unit. An explicit "-x"
// flag wins; otherwise the source extension decides, with C headers
// promoted to C++ when the arguments select a C++ standard or compiler.
func (u CompileUnit) Language() (string, bool) {
	for i, arg := range u.Arguments {
		var lang string
		switch {
		case arg == "-x" && i+1 < len(u.Arguments):
			lang = u.Arguments[i+1]
		case strings.HasPrefix(arg, "-x") && len(arg) > 2:
			lang = arg[2:]
		default:
			continue
		}
		switch lang {
		case "c", "c-header":
			return LangC, true
		case "c++", "c++-header":
			return LangCPP, true
		}
	}

	path := u.SourcePath()
	lang, ok := LanguageForFile(path)
	if !ok {
		return "", false
	}
	if lang == LangC && strings.EqualFold(filepath.Ext(path), ".h") && u.isCPlusPlus() {
		return LangCPP, true
	}
	return lang, true
}

func (u CompileUnit) isCPlusPlus() bool {
	for i, arg := range u.Arguments {
		if strings.HasPrefix(arg, "-std=c++") || strings.HasPrefix(arg, "-std=gnu++") {
			return true
		}
		if i == 0 && strings.HasSuffix(filepath.Base(arg), "++") {
			return true
		}
	}
	return false
}

// IncludeDirs holds the header search path of a unit, split the way the
// compiler searches it.
type IncludeDirs struct {
	Quote  []string // -iquote, searched for "..." includes only
	Angled []string // -I, -isystem, -idirafter
}

// IncludeDirs extracts the header search path from the unit's arguments.
// Relative directories are resolved against the unit's Directory.
func (u CompileUnit) IncludeDirs() IncludeDirs {
	var dirs IncludeDirs
	flags := []string{"-iquote", "-isystem", "-idirafter", "-I"}
	for i := 0; i < len(u.Arguments); i++ {
		arg := u.Arguments[i]
		for _, flag := range flags {
			if !strings.HasPrefix(arg, flag) {
				continue
			}
			dir := strings.TrimPrefix(arg, flag)
			if dir == "" {
				if i+1 >= len(u.Arguments) {
					break
				}
				i++
				dir = u.Arguments[i]
			}
			if flag == "-iquote" {
				dirs.Quote = append(dirs.Quote, u.abs(dir))
			} else {
				dirs.Angled = append(dirs.Angled, u.abs(dir))
			}
			break
		}
	}
	return dirs
}

func (u CompileUnit) abs(path string) string {
	if filepath.IsAbs(path) || u.Directory == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(u.Directory, path)
}

// takesValue reports whether a compiler option consumes the next argument.
func takesValue(arg string) bool {
	switch arg {
	case "-o", "-I", "-iquote", "-isystem", "-idirafter", "-include", "-imacros",
		"-x", "-MF", "-MT", "-MQ", "-D", "-U", "-Xclang", "-target", "--sysroot":
		return true
	}
	return false
}

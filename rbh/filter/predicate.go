package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rbh-project/rbh4/rbh"
)

// numericCompare parses GNU find's "[+-]N" convention: a bare N means
// equal, "+N" means strictly greater, "-N" means strictly lower. Grounded
// on the original _numeric2filter in rbh-find/src/filters.c.
func numericCompare(field rbh.Field, raw string) (rbh.Filter, error) {
	if raw == "" {
		return rbh.Filter{}, fmt.Errorf("filter: empty numeric predicate argument")
	}
	op := rbh.OpEqual
	numeric := raw
	switch raw[0] {
	case '+':
		op = rbh.OpStrictlyGreater
		numeric = raw[1:]
	case '-':
		op = rbh.OpStrictlyLower
		numeric = raw[1:]
	}
	n, err := strconv.ParseUint(numeric, 10, 64)
	if err != nil {
		return rbh.Filter{}, fmt.Errorf("filter: invalid numeric argument %q: %w", raw, err)
	}
	return rbh.Compare(field, op, rbh.NewUint64(n)), nil
}

// sizeMultiplier maps a GNU find -size suffix to a byte multiplier (default,
// with no suffix, is 512-byte blocks per POSIX find, but RobinHood's -size
// defaults to bytes with an explicit "c" suffix, which is the only one this
// compiler supports plus the common SI-ish letters).
func sizeMultiplier(suffix byte) (uint64, error) {
	switch suffix {
	case 'c':
		return 1, nil
	case 'k':
		return 1024, nil
	case 'M':
		return 1024 * 1024, nil
	case 'G':
		return 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("filter: unknown -size suffix %q", string(suffix))
	}
}

func sizePredicate(raw string) (rbh.Filter, error) {
	if raw == "" {
		return rbh.Filter{}, fmt.Errorf("filter: -size requires an argument")
	}
	mult := uint64(1)
	numeric := raw
	if last := raw[len(raw)-1]; last < '0' || last > '9' {
		m, err := sizeMultiplier(last)
		if err != nil {
			return rbh.Filter{}, err
		}
		mult = m
		numeric = raw[:len(raw)-1]
	}
	field := rbh.FieldOfStatX(rbh.StatXSize)
	base, err := numericCompare(field, numeric)
	if err != nil {
		return rbh.Filter{}, err
	}
	if mult == 1 {
		return base, nil
	}
	// Re-derive with the multiplied value; numericCompare already picked
	// the right operator from the sign prefix, so redo the arithmetic here
	// instead of threading it through a second parameter.
	op := base.Op
	v, _ := base.Value.AsInt64()
	return rbh.Compare(field, op, rbh.NewUint64(uint64(v)*mult)), nil
}

// FileTypeLetter maps find's -type single-letter codes to a FileType.
func FileTypeLetter(letter string) (rbh.FileType, error) {
	switch letter {
	case "f":
		return rbh.FileTypeRegular, nil
	case "d":
		return rbh.FileTypeDirectory, nil
	case "l":
		return rbh.FileTypeSymlink, nil
	case "b":
		return rbh.FileTypeBlockDev, nil
	case "c":
		return rbh.FileTypeCharDev, nil
	case "p":
		return rbh.FileTypeFIFO, nil
	case "s":
		return rbh.FileTypeSocket, nil
	default:
		return 0, fmt.Errorf("filter: unknown -type argument %q", letter)
	}
}

// Compiler turns a find-style token stream into an rbh.Filter, delegating
// plugin-specific predicates (e.g. -fid, -hsm-state) to registered
// extensions (see rbh/plugin's ExtensionOps.BuildFilter).
type Compiler struct {
	// ExtraPredicates lets callers (rbh-find, plugin extensions) register
	// additional named predicates beyond the built-in GNU-find families.
	ExtraPredicates map[string]func(args []string) (rbh.Filter, int, error)
}

// NewCompiler returns a Compiler with only the built-in predicates.
func NewCompiler() *Compiler {
	return &Compiler{ExtraPredicates: make(map[string]func(args []string) (rbh.Filter, int, error))}
}

// builtins maps a predicate token (without its leading '-') to a handler
// that consumes however many argv entries it needs and returns the filter
// plus the count of arguments consumed (always 1 for these).
func (c *Compiler) builtin(name string, args []string) (rbh.Filter, int, error) {
	if len(args) == 0 {
		return rbh.Filter{}, 0, fmt.Errorf("filter: -%s requires an argument", name)
	}
	arg := args[0]
	switch name {
	case "name":
		return rbh.Compare(rbh.FieldOfName, rbh.OpRegex, rbh.NewRegex(arg, rbh.RegexOptionShellPattern)), 1, nil
	case "iname":
		return rbh.Compare(rbh.FieldOfName, rbh.OpRegex,
			rbh.NewRegex(arg, rbh.RegexOptionShellPattern|rbh.RegexOptionCaseInsensitive)), 1, nil
	case "lname":
		return rbh.Compare(rbh.FieldOfSymlink, rbh.OpRegex, rbh.NewRegex(arg, rbh.RegexOptionShellPattern)), 1, nil
	case "ilname":
		return rbh.Compare(rbh.FieldOfSymlink, rbh.OpRegex,
			rbh.NewRegex(arg, rbh.RegexOptionShellPattern|rbh.RegexOptionCaseInsensitive)), 1, nil
	case "path":
		return rbh.Compare(rbh.FieldOfNamespaceXattr("path"), rbh.OpRegex, rbh.NewRegex(arg, rbh.RegexOptionShellPattern)), 1, nil
	case "size":
		f, err := sizePredicate(arg)
		return f, 1, err
	case "type":
		ft, err := FileTypeLetter(arg)
		if err != nil {
			return rbh.Filter{}, 0, err
		}
		return rbh.Compare(rbh.FieldOfStatX(rbh.StatXType), rbh.OpEqual, rbh.NewUint32(uint32(ft))), 1, nil
	case "uid":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXUID), arg)
		return f, 1, err
	case "gid":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXGID), arg)
		return f, 1, err
	case "links":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXNlink), arg)
		return f, 1, err
	case "atime", "amin":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXAtime), arg)
		return f, 1, err
	case "mtime", "mmin":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXMtime), arg)
		return f, 1, err
	case "ctime", "cmin":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXCtime), arg)
		return f, 1, err
	case "btime", "bmin":
		f, err := numericCompare(rbh.FieldOfStatX(rbh.StatXBtime), arg)
		return f, 1, err
	case "xattr":
		key := arg
		value := ""
		if i := strings.IndexByte(arg, '='); i >= 0 {
			key, value = arg[:i], arg[i+1:]
		}
		if value == "" {
			return rbh.Compare(rbh.FieldOfInodeXattr(key), rbh.OpExists, rbh.Value{}), 1, nil
		}
		return rbh.Compare(rbh.FieldOfInodeXattr(key), rbh.OpEqual, rbh.NewString(value)), 1, nil
	default:
		return rbh.Filter{}, 0, fmt.Errorf("filter: unknown predicate -%s", name)
	}
}

// Compile resolves one predicate token (with its leading '-' already
// stripped) against the built-ins then the registered extras.
func (c *Compiler) Compile(name string, args []string) (rbh.Filter, int, error) {
	if f, n, err := c.builtin(name, args); err == nil {
		return f, n, nil
	} else if fn, ok := c.ExtraPredicates[name]; ok {
		return fn(args)
	} else {
		return rbh.Filter{}, 0, err
	}
}

package filter

import (
	"fmt"
	"strings"

	"github.com/rbh-project/rbh4/rbh"
)

// Action is one of the find-driver's side-effecting terms (spec.md §6):
// print[0], fprint[0], ls, fls, printf, fprintf, delete, exec, count, quit.
// Name is the lower-cased action word; Args holds any arguments the action
// itself consumes (the printf format string, the exec command line, the
// fprint destination path).
type Action struct {
	Name string
	Args []string
}

// ParseResult is the outcome of parsing one find-style argument vector: the
// boolean filter expression, any -sort/-rsort keys (applied in the order
// given), and the ordered list of actions to run against each matching
// entry. An expression with no actions implies a default "-print".
type ParseResult struct {
	Filter  rbh.Filter
	Sort    rbh.Sort
	Actions []Action
}

// parser walks tokens left to right with a one-token lookahead, the
// classic recursive-descent shape for find's paren/not/and/or grammar;
// grounded on the token classification rbh-find/src/parser.c performs and
// on the original_source's left-to-right, no-backtracking evaluation order.
type parser struct {
	tokens  []string
	pos     int
	c       *Compiler
	sort    rbh.Sort
	actions []Action
}

// Parse compiles a find-style token stream into a ParseResult. Tokens are
// whatever argv split produced (e.g. "-size", "+512c", "-and", "-type",
// "f"); this does not itself tokenize a shell command line.
func Parse(tokens []string, c *Compiler) (ParseResult, error) {
	p := &parser{tokens: tokens, c: c}
	f, err := p.parseOr()
	if err != nil {
		return ParseResult{}, err
	}
	if p.pos != len(p.tokens) {
		return ParseResult{}, fmt.Errorf("filter: unexpected token %q", p.peek())
	}
	if len(p.actions) == 0 {
		p.actions = []Action{{Name: "print"}}
	}
	return ParseResult{Filter: f, Sort: p.sort, Actions: p.actions}, nil
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) parseOr() (rbh.Filter, error) {
	left, err := p.parseAnd()
	if err != nil {
		return rbh.Filter{}, err
	}
	for isOr(p.peek()) {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return rbh.Filter{}, err
		}
		left = rbh.Or(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (rbh.Filter, error) {
	left, err := p.parseNot()
	if err != nil {
		return rbh.Filter{}, err
	}
	for p.canStartTerm() {
		if isAnd(p.peek()) {
			p.next()
		}
		right, err := p.parseNot()
		if err != nil {
			return rbh.Filter{}, err
		}
		left = rbh.And(left, right)
	}
	return left, nil
}

// canStartTerm reports whether the token at pos could begin another
// conjunct: anything other than a close-paren, an explicit -o/-or, or
// end-of-input. Implicit AND (no "-a" between two predicates) is GNU
// find's default.
func (p *parser) canStartTerm() bool {
	t := p.peek()
	return t != "" && t != ")" && !isOr(t)
}

func (p *parser) parseNot() (rbh.Filter, error) {
	if isNot(p.peek()) {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return rbh.Filter{}, err
		}
		return rbh.Not(inner), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (rbh.Filter, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return rbh.Filter{}, fmt.Errorf("filter: unexpected end of expression")
	case tok == "(":
		p.next()
		f, err := p.parseOr()
		if err != nil {
			return rbh.Filter{}, err
		}
		if p.peek() != ")" {
			return rbh.Filter{}, fmt.Errorf("filter: missing closing paren")
		}
		p.next()
		return f, nil
	case tok == "-sort" || tok == "-rsort":
		p.next()
		key, err := p.consumeArg(tok)
		if err != nil {
			return rbh.Filter{}, err
		}
		field, err := sortField(key)
		if err != nil {
			return rbh.Filter{}, err
		}
		p.sort = append(p.sort, rbh.SortField{Field: field, Ascending: tok == "-sort"})
		return rbh.None, nil
	case isActionToken(tok):
		return p.parseAction()
	case strings.HasPrefix(tok, "-"):
		p.next()
		name := strings.TrimPrefix(tok, "-")
		f, n, err := p.c.Compile(name, p.tokens[p.pos:])
		if err != nil {
			return rbh.Filter{}, err
		}
		p.pos += n
		return f, nil
	default:
		return rbh.Filter{}, fmt.Errorf("filter: unexpected token %q", tok)
	}
}

// parseAction consumes one action term. Actions evaluate true (find's
// "always matches" rule for side-effecting terms) so they compose with the
// surrounding AND/OR the same way a predicate would, even though the
// caller (cmd/rbh-find) runs them only against entries the full expression
// matched.
func (p *parser) parseAction() (rbh.Filter, error) {
	name := strings.TrimPrefix(p.next(), "-")
	switch name {
	case "printf", "fprint", "fprint0", "fls":
		arg, err := p.consumeArg(name)
		if err != nil {
			return rbh.Filter{}, err
		}
		p.actions = append(p.actions, Action{Name: name, Args: []string{arg}})
	case "fprintf":
		file, err := p.consumeArg(name)
		if err != nil {
			return rbh.Filter{}, err
		}
		format, err := p.consumeArg(name)
		if err != nil {
			return rbh.Filter{}, err
		}
		p.actions = append(p.actions, Action{Name: name, Args: []string{file, format}})
	case "exec":
		var args []string
		for p.peek() != ";" {
			if p.peek() == "" {
				return rbh.Filter{}, fmt.Errorf("filter: -exec missing terminating ';'")
			}
			args = append(args, p.next())
		}
		p.next() // consume ";"
		p.actions = append(p.actions, Action{Name: name, Args: args})
	default:
		p.actions = append(p.actions, Action{Name: name})
	}
	return rbh.None, nil
}

func (p *parser) consumeArg(name string) (string, error) {
	if p.peek() == "" {
		return "", fmt.Errorf("filter: -%s requires an argument", strings.TrimPrefix(name, "-"))
	}
	return p.next(), nil
}

func isOr(t string) bool  { return t == "-o" || t == "-or" }
func isAnd(t string) bool { return t == "-a" || t == "-and" }
func isNot(t string) bool { return t == "!" || t == "-not" }

func isActionToken(t string) bool {
	switch strings.TrimPrefix(t, "-") {
	case "print", "print0", "fprint", "fprint0", "ls", "fls", "printf", "fprintf", "delete", "exec", "count", "quit":
		return true
	default:
		return false
	}
}

// sortField resolves a -sort/-rsort key (e.g. "statx.size", "name") to a
// Field, the small set spec.md §6 names as grouping/sort targets.
func sortField(key string) (rbh.Field, error) {
	switch key {
	case "name":
		return rbh.FieldOfName, nil
	case "size", "statx.size":
		return rbh.FieldOfStatX(rbh.StatXSize), nil
	case "atime", "statx.atime":
		return rbh.FieldOfStatX(rbh.StatXAtime), nil
	case "mtime", "statx.mtime":
		return rbh.FieldOfStatX(rbh.StatXMtime), nil
	case "ctime", "statx.ctime":
		return rbh.FieldOfStatX(rbh.StatXCtime), nil
	default:
		return rbh.Field{}, fmt.Errorf("filter: unknown sort key %q", key)
	}
}

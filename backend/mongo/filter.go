package mongo

import (
	"fmt"

	"github.com/rbh-project/rbh4/rbh"
	rbhfilter "github.com/rbh-project/rbh4/rbh/filter"
	"go.mongodb.org/mongo-driver/bson"
)

// fieldPath returns the dotted document path a Field reads, following
// entryDoc's shape. Namespace-scoped fields (parent id, name, namespace
// xattrs) are only meaningful after an $unwind of the ns array, matching
// spec.md §4.3's "$unwind -> $match -> ..." pipeline shape.
func fieldPath(f rbh.Field) string {
	switch f.Kind {
	case rbh.FieldKindID:
		return "_id"
	case rbh.FieldKindParentID:
		return "ns.parent_id"
	case rbh.FieldKindName:
		return "ns.name"
	case rbh.FieldKindSymlink:
		return "symlink"
	case rbh.FieldKindStatX:
		return "statx." + statxFieldName(f.StatXBit)
	case rbh.FieldKindNamespaceXattr:
		if f.Key == "" {
			return "ns.xattrs"
		}
		return "ns.xattrs." + f.Key
	case rbh.FieldKindInodeXattr:
		if f.Key == "" {
			return "xattrs"
		}
		return "xattrs." + f.Key
	default:
		return ""
	}
}

func statxFieldName(bit rbh.StatXMask) string {
	switch bit {
	case rbh.StatXType:
		return "type"
	case rbh.StatXMode:
		return "mode"
	case rbh.StatXNlink:
		return "nlink"
	case rbh.StatXUID:
		return "uid"
	case rbh.StatXGID:
		return "gid"
	case rbh.StatXSize:
		return "size"
	case rbh.StatXBlocks:
		return "blocks"
	case rbh.StatXBlksize:
		return "blksize"
	case rbh.StatXIno:
		return "ino"
	case rbh.StatXAtime:
		return "atime"
	case rbh.StatXBtime:
		return "btime"
	case rbh.StatXCtime:
		return "ctime"
	case rbh.StatXMtime:
		return "mtime"
	case rbh.StatXMountID:
		return "mount_id"
	default:
		return "unknown"
	}
}

// needsUnwind reports whether f references a namespace-scoped field,
// requiring the query to run after an $unwind of the ns array rather than
// directly against the stored document.
func needsUnwind(f rbh.Filter) bool {
	switch f.Kind {
	case rbh.NodeComparison:
		return f.Field.Kind == rbh.FieldKindParentID || f.Field.Kind == rbh.FieldKindName ||
			f.Field.Kind == rbh.FieldKindNamespaceXattr
	case rbh.NodeLogical:
		for _, c := range f.Children {
			if needsUnwind(c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ToBSON translates a filter AST into a bson.M query document, matching
// MongoDB's $match operator shapes. Regex nodes using shell-pattern
// (glob) syntax are translated to Mongo's own $regex with glob-to-regex
// escaping.
func ToBSON(f rbh.Filter) (bson.M, error) {
	switch f.Kind {
	case rbh.NodeNone:
		return bson.M{}, nil
	case rbh.NodeLogical:
		return logicalToBSON(f)
	case rbh.NodeComparison:
		return comparisonToBSON(f)
	default:
		return nil, fmt.Errorf("mongo: cannot translate filter node kind %d", f.Kind)
	}
}

func logicalToBSON(f rbh.Filter) (bson.M, error) {
	switch f.LogicalOp {
	case rbh.LogicalAnd:
		children, err := translateChildren(f.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$and": children}, nil
	case rbh.LogicalOr:
		children, err := translateChildren(f.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$or": children}, nil
	case rbh.LogicalNot:
		if len(f.Children) != 1 {
			return nil, fmt.Errorf("mongo: NOT requires exactly one child")
		}
		inner, err := ToBSON(f.Children[0])
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{inner}}, nil
	default:
		return nil, fmt.Errorf("mongo: unknown logical op %d", f.LogicalOp)
	}
}

func translateChildren(children []rbh.Filter) (bson.A, error) {
	out := make(bson.A, 0, len(children))
	for _, c := range children {
		m, err := ToBSON(c)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func comparisonToBSON(f rbh.Filter) (bson.M, error) {
	path := fieldPath(f.Field)
	if path == "" {
		return nil, fmt.Errorf("mongo: field kind %d has no document path", f.Field.Kind)
	}

	if f.Op == rbh.OpExists {
		return bson.M{path: bson.M{"$exists": true}}, nil
	}
	if f.Op == rbh.OpRegex {
		field, negated := rbhfilter.IsNegatedRegex(f)
		path = fieldPath(field)
		re := f.Value.RegexValue()
		pattern := re.Pattern
		opts := ""
		if re.Options&rbh.RegexOptionShellPattern != 0 {
			pattern = globToRegex(pattern)
		}
		if re.Options&rbh.RegexOptionCaseInsensitive != 0 {
			opts = "i"
		}
		match := bson.M{"$regex": pattern, "$options": opts}
		if negated {
			return bson.M{path: bson.M{"$not": match}}, nil
		}
		return bson.M{path: match}, nil
	}

	val := valueToBSON(f.Value)
	switch f.Op {
	case rbh.OpEqual:
		return bson.M{path: val}, nil
	case rbh.OpNotEqual:
		return bson.M{path: bson.M{"$ne": val}}, nil
	case rbh.OpStrictlyLower:
		return bson.M{path: bson.M{"$lt": val}}, nil
	case rbh.OpStrictlyGreater:
		return bson.M{path: bson.M{"$gt": val}}, nil
	case rbh.OpLowerOrEqual:
		return bson.M{path: bson.M{"$lte": val}}, nil
	case rbh.OpGreaterOrEqual:
		return bson.M{path: bson.M{"$gte": val}}, nil
	case rbh.OpIn:
		return bson.M{path: bson.M{"$in": val}}, nil
	case rbh.OpBitsAnySet:
		return bson.M{path: bson.M{"$bitsAnySet": val}}, nil
	case rbh.OpBitsAllSet:
		return bson.M{path: bson.M{"$bitsAllSet": val}}, nil
	case rbh.OpBitsAnyClear:
		return bson.M{path: bson.M{"$bitsAnyClear": val}}, nil
	case rbh.OpBitsAllClear:
		return bson.M{path: bson.M{"$bitsAllClear": val}}, nil
	default:
		return nil, fmt.Errorf("mongo: unsupported comparison op %d", f.Op)
	}
}

// globToRegex converts the shell-pattern glob syntax (*, ?, [...]) the find
// predicate compiler produces into a Perl-compatible regex Mongo's $regex
// understands.
func globToRegex(glob string) string {
	out := make([]byte, 0, len(glob)*2)
	out = append(out, '^')
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			out = append(out, '.', '*')
		case '?':
			out = append(out, '.')
		case '.', '+', '(', ')', '|', '^', '$', '\\', '{', '}':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	out = append(out, '$')
	return string(out)
}

// Package filter implements the Filter algebraic data type: a small,
// closed set of track predicates that (un)marshal to JSON for storage
// alongside a playlist row, and compile to a single parenthesized SQL
// boolean expression with every literal embedded directly (no
// placeholder binding; see Node.SQL).
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trisync/trisync/internal/liberr"
)

// Node is one Filter ADT value: a Group or one of the six leaf
// condition kinds. Only Group is valid at the root of a stored filter.
type Node interface {
	// SQL returns the node's compiled boolean expression, or "" if the
	// node (an empty Group) contributes nothing.
	SQL() string
	kind() string
}

// GroupOp is the boolean combinator of a Group node.
type GroupOp string

const (
	And GroupOp = "and"
	Or  GroupOp = "or"
)

// Group combines zero or more children with And/Or. An empty Group, or a
// Group whose children all compile empty, itself compiles empty.
type Group struct {
	Op       GroupOp
	Children []Node
}

func (g *Group) kind() string { return "group" }

// SQL joins each non-empty child's SQL with the group's operator,
// parenthesizing the whole. Empty children are skipped; if every child is
// empty (including the empty-children case), the group returns "".
func (g *Group) SQL() string {
	var parts []string
	for _, c := range g.Children {
		if c == nil {
			continue
		}
		s := c.SQL()
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return ""
	}
	sep := " and "
	if g.Op == Or {
		sep = " or "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// WhereExpression compiles a root filter to a WHERE-clause fragment.
// Only a *Group is accepted at the root; a nil or empty result means the
// filter imposes no restriction (no WHERE clause should be emitted).
func WhereExpression(root *Group) string {
	if root == nil {
		return ""
	}
	return root.SQL()
}

// StringTarget names the text columns a StringCond may target.
type StringTarget string

const (
	TargetTitle       StringTarget = "title"
	TargetArtist      StringTarget = "artist"
	TargetAlbum       StringTarget = "album"
	TargetGenre       StringTarget = "genre"
	TargetAlbumArtist StringTarget = "album_artist"
	TargetComposer    StringTarget = "composer"
	TargetMemo        StringTarget = "memo"
	TargetPath        StringTarget = "path"
)

// StringOp is the comparison operator of a StringCond.
type StringOp string

const (
	StringEqual      StringOp = "equal"
	StringNotEqual   StringOp = "not_equal"
	StringContain    StringOp = "contain"
	StringNotContain StringOp = "not_contain"
	StringStart      StringOp = "start"
	StringEnd        StringOp = "end"
)

// StringCond matches one text column against a literal value.
type StringCond struct {
	Target StringTarget
	Op     StringOp
	Value  string
}

func (c *StringCond) kind() string { return "string" }

func (c *StringCond) SQL() string {
	col := string(c.Target)
	lit := sqlQuote(c.Value)
	switch c.Op {
	case StringEqual:
		return fmt.Sprintf("%s = %s", col, lit)
	case StringNotEqual:
		return fmt.Sprintf("%s <> %s", col, lit)
	case StringContain:
		return fmt.Sprintf("%s %s", col, likeClause("%", c.Value, "%"))
	case StringNotContain:
		return fmt.Sprintf("NOT (%s %s)", col, likeClause("%", c.Value, "%"))
	case StringStart:
		return fmt.Sprintf("%s %s", col, likeClause("", c.Value, "%"))
	case StringEnd:
		return fmt.Sprintf("%s %s", col, likeClause("%", c.Value, ""))
	default:
		return ""
	}
}

// likeClause builds a `col LIKE 'prefix' || v || 'suffix'`-equivalent
// literal, escaping %, _, and $ in v with $ and appending ESCAPE '$' only
// when escaping was actually needed.
func likeClause(prefix, v, suffix string) string {
	escaped, needsEscape := likeEscape(v)
	return fmt.Sprintf("LIKE %s%s", sqlQuote(prefix+escaped+suffix), likeEscapeClause(needsEscape))
}

func likeEscapeClause(needsEscape bool) string {
	if !needsEscape {
		return ""
	}
	return " ESCAPE '$'"
}

func likeEscape(v string) (string, bool) {
	if !strings.ContainsAny(v, "%_$") {
		return v, false
	}
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '%', '_', '$':
			b.WriteByte('$')
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

// IntTarget names the integer columns an IntCond may target.
type IntTarget string

const (
	TargetTrackNumber IntTarget = "track_number"
	TargetTrackMax    IntTarget = "track_max"
	TargetDiscNumber  IntTarget = "disc_number"
	TargetDiscMax     IntTarget = "disc_max"
	TargetDuration    IntTarget = "duration"
	TargetRating      IntTarget = "rating"
)

// IntOp is the comparison operator of an IntCond.
type IntOp string

const (
	IntEqual    IntOp = "equal"
	IntNotEqual IntOp = "not_equal"
	IntGe       IntOp = "ge"
	IntLe       IntOp = "le"
	IntRangeIn  IntOp = "range_in"
	IntRangeOut IntOp = "range_out"
)

// IntCond matches one integer column against a literal value or range.
// Value is used by Equal/NotEqual/Ge/Le; Min/Max by RangeIn/RangeOut
// (reordered so Min <= Max regardless of input order).
type IntCond struct {
	Target IntTarget
	Op     IntOp
	Value  int64
	Min    int64
	Max    int64
}

func (c *IntCond) kind() string { return "int" }

func (c *IntCond) SQL() string {
	col := string(c.Target)
	switch c.Op {
	case IntEqual:
		return fmt.Sprintf("%s = %d", col, c.Value)
	case IntNotEqual:
		return fmt.Sprintf("%s <> %d", col, c.Value)
	case IntGe:
		return fmt.Sprintf("%s >= %d", col, c.Value)
	case IntLe:
		return fmt.Sprintf("%s <= %d", col, c.Value)
	case IntRangeIn, IntRangeOut:
		lo, hi := c.Min, c.Max
		if lo > hi {
			lo, hi = hi, lo
		}
		if c.Op == IntRangeIn {
			return fmt.Sprintf("%s BETWEEN %d AND %d", col, lo, hi)
		}
		return fmt.Sprintf("(%s < %d OR %s > %d)", col, lo, col, hi)
	default:
		return ""
	}
}

// DateTarget names the date columns a DateCond may target.
type DateTarget string

const (
	TargetReleaseDate DateTarget = "release_date"
)

// DateOp is the comparison operator of a DateCond.
type DateOp string

const (
	DateEqual    DateOp = "equal"
	DateNotEqual DateOp = "not_equal"
	DateBefore   DateOp = "before"
	DateAfter    DateOp = "after"
	DateNone     DateOp = "none"
)

// DateCond matches one date column against a literal ISO date, or tests
// for NULL (DateNone).
type DateCond struct {
	Target DateTarget
	Op     DateOp
	Value  *time.Time
}

func (c *DateCond) kind() string { return "date" }

func (c *DateCond) SQL() string {
	col := string(c.Target)
	if c.Op == DateNone {
		return col + " IS NULL"
	}
	if c.Value == nil {
		return ""
	}
	lit := sqlQuote(c.Value.Format("2006-01-02"))
	switch c.Op {
	case DateEqual:
		return fmt.Sprintf("%s = %s", col, lit)
	case DateNotEqual:
		return fmt.Sprintf("%s <> %s", col, lit)
	case DateBefore:
		return fmt.Sprintf("%s < %s", col, lit)
	case DateAfter:
		return fmt.Sprintf("%s > %s", col, lit)
	default:
		return ""
	}
}

// TagOp is the operator of a TagCond.
type TagOp string

const (
	TagContain    TagOp = "contain"
	TagNotContain TagOp = "not_contain"
	TagNone       TagOp = "none"
)

// TagCond tests track_tags membership. Value is required for
// Contain/NotContain and ignored for None.
type TagCond struct {
	Op    TagOp
	Value *int64
}

func (c *TagCond) kind() string { return "tag" }

const tagExists = "EXISTS(SELECT 1 FROM track_tags t WHERE t.track_id = tracks.id AND t.tag_id = %d)"

func (c *TagCond) SQL() string {
	switch c.Op {
	case TagContain:
		if c.Value == nil {
			return ""
		}
		return fmt.Sprintf(tagExists, *c.Value)
	case TagNotContain:
		if c.Value == nil {
			return ""
		}
		return "NOT " + fmt.Sprintf(tagExists, *c.Value)
	case TagNone:
		return "NOT EXISTS(SELECT 1 FROM track_tags t WHERE t.track_id = tracks.id)"
	default:
		return ""
	}
}

// ArtworkOp is the operator of an ArtworkCond.
type ArtworkOp string

const (
	ArtworkHas  ArtworkOp = "has"
	ArtworkNone ArtworkOp = "none"
)

// ArtworkCond tests whether a track has any artwork at all.
type ArtworkCond struct {
	Op ArtworkOp
}

func (c *ArtworkCond) kind() string { return "artwork" }

const artworkExists = "EXISTS(SELECT 1 FROM track_artworks ta WHERE ta.track_id = tracks.id)"

func (c *ArtworkCond) SQL() string {
	switch c.Op {
	case ArtworkHas:
		return artworkExists
	case ArtworkNone:
		return "NOT " + artworkExists
	default:
		return ""
	}
}

// BoolTarget names the boolean columns a BoolCond may target.
type BoolTarget string

const (
	TargetSuggestTarget BoolTarget = "suggest_target"
)

// BoolOp is the operator of a BoolCond.
type BoolOp string

const (
	BoolTrue  BoolOp = "true"
	BoolFalse BoolOp = "false"
)

// BoolCond matches one boolean column against a literal.
type BoolCond struct {
	Target BoolTarget
	Op     BoolOp
}

func (c *BoolCond) kind() string { return "bool" }

func (c *BoolCond) SQL() string {
	switch c.Op {
	case BoolTrue:
		return string(c.Target) + " = true"
	case BoolFalse:
		return string(c.Target) + " = false"
	default:
		return ""
	}
}

// sqlQuote doubles embedded single quotes and wraps v in single quotes,
// matching the literal-embedding (not placeholder) contract every
// compiled fragment follows.
func sqlQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// jsonNode is the wire shape every Filter node (un)marshals through: a
// "target" discriminant naming the group/tags/artwork/column kind, plus
// (group only) "op"/"children", plus (every leaf) a nested "range" object
// carrying that leaf's own "op"-discriminated payload.
type jsonNode struct {
	Target   string     `json:"target"`
	Op       string     `json:"op,omitempty"`
	Children []jsonNode `json:"children,omitempty"`
	Range    *jsonRange `json:"range,omitempty"`
}

type jsonRange struct {
	Op       string  `json:"op"`
	Value    *string `json:"value,omitempty"`
	IntValue *int64  `json:"int_value,omitempty"`
	TagValue *int64  `json:"tag_value,omitempty"`
	Min      *int64  `json:"min,omitempty"`
	Max      *int64  `json:"max,omitempty"`
}

// MarshalFilterJSON serializes a root Group to its stored JSON form.
func MarshalFilterJSON(root *Group) ([]byte, error) {
	if root == nil {
		return json.Marshal(jsonNode{Target: "group", Op: string(And)})
	}
	return json.Marshal(toJSON(root))
}

func toJSON(n Node) jsonNode {
	switch v := n.(type) {
	case *Group:
		children := make([]jsonNode, 0, len(v.Children))
		for _, c := range v.Children {
			children = append(children, toJSON(c))
		}
		return jsonNode{Target: "group", Op: string(v.Op), Children: children}
	case *StringCond:
		val := v.Value
		return jsonNode{Target: string(v.Target), Range: &jsonRange{Op: string(v.Op), Value: &val}}
	case *IntCond:
		switch v.Op {
		case IntRangeIn, IntRangeOut:
			min, max := v.Min, v.Max
			return jsonNode{Target: string(v.Target), Range: &jsonRange{Op: string(v.Op), Min: &min, Max: &max}}
		default:
			val := v.Value
			return jsonNode{Target: string(v.Target), Range: &jsonRange{Op: string(v.Op), IntValue: &val}}
		}
	case *DateCond:
		rng := &jsonRange{Op: string(v.Op)}
		if v.Value != nil {
			s := v.Value.Format("2006-01-02")
			rng.Value = &s
		}
		return jsonNode{Target: string(v.Target), Range: rng}
	case *TagCond:
		return jsonNode{Target: "tags", Range: &jsonRange{Op: string(v.Op), TagValue: v.Value}}
	case *ArtworkCond:
		return jsonNode{Target: "artwork", Range: &jsonRange{Op: string(v.Op)}}
	case *BoolCond:
		return jsonNode{Target: string(v.Target), Range: &jsonRange{Op: string(v.Op)}}
	default:
		return jsonNode{}
	}
}

// UnmarshalFilterJSON parses stored JSON back into a root Group. filterID
// is used only to attach context to InvalidFilterRangeForTarget-style
// parse errors.
func UnmarshalFilterJSON(filterID int64, data []byte) (*Group, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, fmt.Errorf("filter: unmarshal: %w", err)
	}
	if jn.Target != "group" {
		return nil, fmt.Errorf("filter %d: root must be a group, got %q", filterID, jn.Target)
	}
	n, err := fromJSON(filterID, jn)
	if err != nil {
		return nil, err
	}
	g, ok := n.(*Group)
	if !ok {
		return nil, fmt.Errorf("filter %d: root did not parse as a group", filterID)
	}
	return g, nil
}

func fromJSON(filterID int64, jn jsonNode) (Node, error) {
	switch jn.Target {
	case "group":
		children := make([]Node, 0, len(jn.Children))
		for _, c := range jn.Children {
			child, err := fromJSON(filterID, c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Group{Op: GroupOp(jn.Op), Children: children}, nil
	case "tags":
		if jn.Range == nil {
			return nil, rangeErr(filterID, jn, "tags condition requires a range")
		}
		return &TagCond{Op: TagOp(jn.Range.Op), Value: jn.Range.TagValue}, nil
	case "artwork":
		if jn.Range == nil {
			return nil, rangeErr(filterID, jn, "artwork condition requires a range")
		}
		return &ArtworkCond{Op: ArtworkOp(jn.Range.Op)}, nil
	default:
		if jn.Range == nil {
			return nil, rangeErr(filterID, jn, "condition requires a range")
		}
		rng := jn.Range
		switch StringTarget(jn.Target) {
		case TargetTitle, TargetArtist, TargetAlbum, TargetGenre, TargetAlbumArtist, TargetComposer, TargetMemo, TargetPath:
			var val string
			if rng.Value != nil {
				val = *rng.Value
			}
			return &StringCond{Target: StringTarget(jn.Target), Op: StringOp(rng.Op), Value: val}, nil
		}
		switch IntTarget(jn.Target) {
		case TargetTrackNumber, TargetTrackMax, TargetDiscNumber, TargetDiscMax, TargetDuration, TargetRating:
			switch IntOp(rng.Op) {
			case IntRangeIn, IntRangeOut:
				if rng.Min == nil || rng.Max == nil {
					return nil, rangeErr(filterID, jn, "range op requires min and max")
				}
				return &IntCond{Target: IntTarget(jn.Target), Op: IntOp(rng.Op), Min: *rng.Min, Max: *rng.Max}, nil
			default:
				var val int64
				if rng.IntValue != nil {
					val = *rng.IntValue
				}
				return &IntCond{Target: IntTarget(jn.Target), Op: IntOp(rng.Op), Value: val}, nil
			}
		}
		if DateTarget(jn.Target) == TargetReleaseDate {
			jc := &DateCond{Target: DateTarget(jn.Target), Op: DateOp(rng.Op)}
			if rng.Value != nil {
				t, err := time.Parse("2006-01-02", *rng.Value)
				if err != nil {
					return nil, rangeErr(filterID, jn, "unparseable date "+*rng.Value)
				}
				jc.Value = &t
			}
			return jc, nil
		}
		if BoolTarget(jn.Target) == TargetSuggestTarget {
			return &BoolCond{Target: BoolTarget(jn.Target), Op: BoolOp(rng.Op)}, nil
		}
		return nil, fmt.Errorf("filter %d: unknown node target %q", filterID, jn.Target)
	}
}

func rangeErr(filterID int64, jn jsonNode, rng string) error {
	return &liberr.InvalidFilterRangeForTarget{FilterID: filterID, Target: jn.Target, Range: rng}
}

package htmldom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSelector is wrapped by every selector the translator cannot
// express as XPath.
var ErrUnsupportedSelector = errors.New("unsupported selector")

// selectorToXPath translates a CSS selector group into an XPath union over
// the whole document. Supported: type and universal selectors, #id, .class,
// attribute selectors ([a], =, ~=, |=, ^=, $=, *=), descendant and child
// combinators, and comma separated groups.
func selectorToXPath(selector string) (string, error) {
	groups, err := splitGroups(selector)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(groups))
	for _, group := range groups {
		xp, err := compileComplex(group)
		if err != nil {
			return "", fmt.Errorf("selector %q: %w", selector, err)
		}
		parts = append(parts, xp)
	}
	return strings.Join(parts, " | "), nil
}

func splitGroups(selector string) ([]string, error) {
	var groups []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(selector); i++ {
		c := selector[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			groups = append(groups, selector[start:i])
			start = i + 1
		}
	}
	groups = append(groups, selector[start:])
	for i, g := range groups {
		groups[i] = strings.TrimSpace(g)
		if groups[i] == "" {
			return nil, fmt.Errorf("selector %q: empty group: %w", selector, ErrUnsupportedSelector)
		}
	}
	return groups, nil
}

func compileComplex(sel string) (string, error) {
	var xpath strings.Builder
	axis := "//"
	i := 0
	for i < len(sel) {
		step, n, err := compileCompound(sel[i:])
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", fmt.Errorf("unexpected %q: %w", sel[i:], ErrUnsupportedSelector)
		}
		xpath.WriteString(axis)
		xpath.WriteString(step)
		i += n

		j := skipSpace(sel, i)
		if j == len(sel) {
			break
		}
		switch sel[j] {
		case '>':
			axis = "/"
			j = skipSpace(sel, j+1)
		case '+', '~':
			return "", fmt.Errorf("combinator %q: %w", sel[j], ErrUnsupportedSelector)
		default:
			if j == i {
				return "", fmt.Errorf("unexpected %q: %w", sel[j:], ErrUnsupportedSelector)
			}
			axis = "//"
		}
		if j == len(sel) {
			return "", fmt.Errorf("dangling combinator: %w", ErrUnsupportedSelector)
		}
		i = j
	}
	return xpath.String(), nil
}

// compileCompound reads one compound selector and returns its XPath step and
// the number of bytes consumed.
func compileCompound(s string) (string, int, error) {
	tag := "*"
	i := 0
	if i < len(s) && s[i] == '*' {
		i++
	} else if name := readIdent(s); name != "" {
		tag = strings.ToLower(name)
		i += len(name)
	}

	var predicates []string
loop:
	for i < len(s) {
		switch s[i] {
		case '#':
			id := readIdent(s[i+1:])
			if id == "" {
				return "", 0, fmt.Errorf("empty id: %w", ErrUnsupportedSelector)
			}
			predicates = append(predicates, "@id="+xpathLiteral(id))
			i += 1 + len(id)
		case '.':
			class := readIdent(s[i+1:])
			if class == "" {
				return "", 0, fmt.Errorf("empty class: %w", ErrUnsupportedSelector)
			}
			predicates = append(predicates, classPredicate(class))
			i += 1 + len(class)
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return "", 0, fmt.Errorf("unterminated attribute selector: %w", ErrUnsupportedSelector)
			}
			pred, err := attributePredicate(s[i+1 : i+end])
			if err != nil {
				return "", 0, err
			}
			predicates = append(predicates, pred)
			i += end + 1
		case ':':
			return "", 0, fmt.Errorf("pseudo class %q: %w", s[i:], ErrUnsupportedSelector)
		default:
			break loop
		}
	}
	if i == 0 {
		return "", 0, nil
	}
	if len(predicates) == 0 {
		return tag, i, nil
	}
	return tag + "[" + strings.Join(predicates, " and ") + "]", i, nil
}

var attributeOperators = []string{"~=", "|=", "^=", "$=", "*=", "="}

func attributePredicate(inner string) (string, error) {
	inner = strings.TrimSpace(inner)
	op, opAt := "", -1
	for _, candidate := range attributeOperators {
		if idx := strings.Index(inner, candidate); idx >= 0 && (opAt < 0 || idx < opAt) {
			op, opAt = candidate, idx
		}
	}

	name := inner
	if opAt >= 0 {
		name = strings.TrimSpace(inner[:opAt])
	}
	if name == "" || readIdent(name) != name {
		return "", fmt.Errorf("attribute name %q: %w", name, ErrUnsupportedSelector)
	}
	attr := "@" + strings.ToLower(name)
	if opAt < 0 {
		return attr, nil
	}

	value := strings.TrimSpace(inner[opAt+len(op):])
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	lit := xpathLiteral(value)

	switch op {
	case "=":
		return attr + "=" + lit, nil
	case "~=":
		return fmt.Sprintf("contains(concat(' ', normalize-space(%s), ' '), concat(' ', %s, ' '))", attr, lit), nil
	case "|=":
		return fmt.Sprintf("(%s=%s or starts-with(%s, concat(%s, '-')))", attr, lit, attr, lit), nil
	case "^=":
		return fmt.Sprintf("starts-with(%s, %s)", attr, lit), nil
	case "$=":
		return fmt.Sprintf("ends-with(%s, %s)", attr, lit), nil
	default:
		return fmt.Sprintf("contains(%s, %s)", attr, lit), nil
	}
}

func classPredicate(class string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), %s)", xpathLiteral(" "+class+" "))
}

// readIdent returns the longest CSS identifier prefix of s.
func readIdent(s string) string {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '-' || c == '_' || c >= 0x80 ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return s[:i]
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r' || s[i] == '\f') {
		i++
	}
	return i
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

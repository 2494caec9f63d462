package calql

import (
	"fmt"
	"strings"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// Parse parses query text into a QuerySpec, recursive-descent over a
// sequence of clauses each introduced by a keyword (LET, SELECT,
// WHERE, GROUP BY, ORDER BY, FORMAT). Keyword matching is
// case-insensitive; clauses may appear in any order. A repeated clause
// is not rejected: list clauses (LET, SELECT, WHERE, GROUP BY, ORDER
// BY) accumulate, and a later FORMAT replaces an earlier one. Errors
// carry a source byte offset and a
// single-line message, wrapped as a *errors.AppError with
// CodeParseError.
func Parse(query string) (QuerySpec, error) {
	p := &parser{lx: newLexer(query), spec: QuerySpec{Aliases: map[string]string{}, Units: map[string]string{}}}

	word, pos := p.lx.readWord(defaultStop)
	for word != "" {
		if err := p.parseClause(strings.ToLower(word), pos); err != nil {
			return p.spec, err
		}
		word, pos = p.lx.readWord(defaultStop)
	}
	return p.spec, nil
}

type parser struct {
	lx   *lexer
	spec QuerySpec
}

func (p *parser) errAt(pos int, msg string) error {
	return cerrors.New(cerrors.CodeParseError, "calql", "Parse",
		fmt.Sprintf("%s (at offset %d)", msg, pos)).WithMetadata("offset", pos)
}

func (p *parser) parseClause(keyword string, pos int) error {
	switch keyword {
	case "let":
		return p.parseLet()
	case "select":
		return p.parseSelect()
	case "where":
		return p.parseWhere()
	case "group":
		return p.expectWord("by", pos, p.parseGroupBy)
	case "order":
		return p.expectWord("by", pos, p.parseOrderBy)
	case "format":
		return p.parseFormat()
	default:
		return p.errAt(pos, "unknown clause keyword \""+keyword+"\"")
	}
}

// expectWord consumes the next word, requires it to equal want
// (case-insensitively; used for the "BY" in "GROUP BY"/"ORDER BY"),
// then runs fn.
func (p *parser) expectWord(want string, pos int, fn func() error) error {
	w, _ := p.lx.readWord(defaultStop)
	if strings.ToLower(w) != want {
		return p.errAt(pos, "expected \""+want+"\"")
	}
	return fn()
}

// parseArglist parses "(arg1, arg2, ...)", or returns an empty list
// if the next non-space byte isn't '('.
func (p *parser) parseArglist() ([]string, error) {
	c, ok := p.lx.readChar()
	if !ok {
		return nil, nil
	}
	if c != '(' {
		p.lx.unreadByte()
		return nil, nil
	}

	var args []string
	for {
		word, _ := p.lx.readWord(defaultStop)
		c, ok := p.lx.readChar()
		if !ok {
			return nil, p.errAt(p.lx.pos, "expected ')'")
		}
		if word != "" && (c == ',' || c == ')') {
			args = append(args, word)
		}
		if c != ',' {
			if c != ')' {
				return nil, p.errAt(p.lx.pos, "expected ')'")
			}
			break
		}
	}
	return args, nil
}

func (p *parser) parseLet() error {
	for {
		target, pos := p.lx.readWord(defaultStop)
		if target == "" {
			return p.errAt(pos, "expected LET target")
		}
		c, ok := p.lx.readChar()
		if !ok || c != '=' {
			return p.errAt(pos, "expected \"=\" after "+target)
		}

		opName, opPos := p.lx.readWord(defaultStop)
		opName = strings.ToLower(opName)
		sig, found := findDef(PreprocessDefs(), opName)
		if !found {
			return p.errAt(opPos, "unknown operator "+opName)
		}
		args, err := p.parseArglist()
		if err != nil {
			return err
		}
		if !sig.accepts(len(args)) {
			return p.errAt(opPos, "invalid number of arguments for operator "+opName)
		}
		for _, existing := range p.spec.PreprocessOps {
			if existing.Target == target {
				return p.errAt(pos, target+" defined twice")
			}
		}

		op := PreprocessOp{Target: target, Op: AggregationOp{Sig: sig, Args: args}}

		nextKeyword, nextPos := p.lx.readWord(defaultStop)
		nextKeyword = strings.ToLower(nextKeyword)
		if nextKeyword == "if" {
			cond, err := p.parseCondition()
			if err != nil {
				return err
			}
			op.Cond = cond
			op.HasCond = true
			nextKeyword, nextPos = p.lx.readWord(defaultStop)
			nextKeyword = strings.ToLower(nextKeyword)
		}

		p.spec.PreprocessOps = append(p.spec.PreprocessOps, op)

		if nextKeyword != "" {
			return p.parseClause(nextKeyword, nextPos)
		}

		c, ok = p.lx.readChar()
		if !ok || c != ',' {
			if ok {
				p.lx.unreadByte()
			}
			return nil
		}
	}
}

func (p *parser) parseSelect() error {
	for {
		c, ok := p.lx.readChar()
		var selectionName string

		if ok && c == '*' {
			p.spec.SelectionMode = SelectAll
		} else {
			if ok {
				p.lx.unreadByte()
			}
			w, wpos := p.lx.readWord(defaultStop)

			peek, peekOK := p.lx.readChar()
			if peekOK {
				p.lx.unreadByte()
			}

			if peekOK && peek == '(' {
				sig, found := findDef(AggregationDefs(), strings.ToLower(w))
				if !found {
					return p.errAt(wpos, "unknown aggregation function "+w)
				}
				args, err := p.parseArglist()
				if err != nil {
					return err
				}
				if !sig.accepts(len(args)) {
					return p.errAt(wpos, "invalid number of arguments for "+sig.Name)
				}
				op := AggregationOp{Sig: sig, Args: args}
				p.spec.AggregationOps = append(p.spec.AggregationOps, op)
				selectionName = op.Name()
				if p.spec.SelectionMode != SelectAll {
					p.spec.SelectionMode = SelectList
					p.spec.Selection = append(p.spec.Selection, selectionName)
				}
			} else {
				if w == "" {
					return p.errAt(wpos, "expected argument for SELECT")
				}
				p.spec.SelectionMode = SelectList
				p.spec.Selection = append(p.spec.Selection, w)
				selectionName = w
			}
		}

		nextKeyword, nextPos := p.lx.readWord(defaultStop)
		nextLower := strings.ToLower(nextKeyword)

		if nextLower == "as" {
			alias, aliasPos := p.lx.readWord(defaultStop)
			if alias == "" {
				return p.errAt(aliasPos, "expected alias at SELECT ... AS")
			}
			p.spec.Aliases[selectionName] = alias
			nextKeyword, nextPos = p.lx.readWord(defaultStop)
			nextLower = strings.ToLower(nextKeyword)
		}

		if nextLower == "unit" {
			unit, unitPos := p.lx.readWord(",;=()\n")
			if unit == "" {
				return p.errAt(unitPos, "expected unit at SELECT ... UNIT")
			}
			p.spec.Units[selectionName] = unit
			nextKeyword, nextPos = p.lx.readWord(defaultStop)
			nextLower = strings.ToLower(nextKeyword)
		}

		if nextKeyword != "" {
			return p.parseClause(nextLower, nextPos)
		}

		c, ok = p.lx.readChar()
		if !ok || c != ',' {
			if ok {
				p.lx.unreadByte()
			}
			return nil
		}
	}
}

func (p *parser) parseCondition() (Condition, error) {
	w, pos := p.lx.readWord(defaultStop)
	negate := false
	if strings.ToLower(w) == "not" {
		negate = true
		w, pos = p.lx.readWord(defaultStop)
	}
	if w == "" {
		return Condition{}, p.errAt(pos, "condition term expected")
	}

	cond := Condition{Attr: w}
	c, ok := p.lx.readChar()
	if !ok {
		cond.Op = boolOp(CondExist, CondNotExist, negate)
		return cond, nil
	}

	switch c {
	case '=':
		val, vpos := p.lx.readWord(defaultStop)
		if val == "" {
			return Condition{}, p.errAt(vpos, "argument expected for '='")
		}
		cond.Op = boolOp(CondEqual, CondNotEqual, negate)
		cond.Value = val
	case '<':
		val, vpos := p.lx.readWord(defaultStop)
		if val == "" {
			return Condition{}, p.errAt(vpos, "argument expected for '<'")
		}
		cond.Op = boolOp(CondLessThan, CondGreaterOrEqual, negate)
		cond.Value = val
	case '>':
		val, vpos := p.lx.readWord(defaultStop)
		if val == "" {
			return Condition{}, p.errAt(vpos, "argument expected for '>'")
		}
		cond.Op = boolOp(CondGreaterThan, CondLessOrEqual, negate)
		cond.Value = val
	default:
		p.lx.unreadByte()
		cond.Op = boolOp(CondExist, CondNotExist, negate)
	}
	return cond, nil
}

func boolOp(pos, neg ConditionOp, negate bool) ConditionOp {
	if negate {
		return neg
	}
	return pos
}

func (p *parser) parseWhere() error {
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return err
		}
		p.spec.Filter = append(p.spec.Filter, cond)

		c, ok := p.lx.readChar()
		if !ok || c != ',' {
			if ok {
				p.lx.unreadByte()
			}
			return nil
		}
	}
}

func (p *parser) parseGroupBy() error {
	for {
		w, _ := p.lx.readWord(defaultStop)
		if w != "" {
			p.spec.AggregationKey = append(p.spec.AggregationKey, w)
		}
		c, ok := p.lx.readChar()
		if !ok || c != ',' {
			if ok {
				p.lx.unreadByte()
			}
			return nil
		}
	}
}

func (p *parser) parseOrderBy() error {
	for {
		attr, pos := p.lx.readWord(defaultStop)
		if attr == "" {
			return p.errAt(pos, "sort attribute expected")
		}

		nextKeyword, nextPos := p.lx.readWord(defaultStop)
		nextLower := strings.ToLower(nextKeyword)

		switch nextLower {
		case "asc":
			p.spec.Sort = append(p.spec.Sort, SortSpec{Attr: attr, Order: Ascending})
		case "desc":
			p.spec.Sort = append(p.spec.Sort, SortSpec{Attr: attr, Order: Descending})
		default:
			p.spec.Sort = append(p.spec.Sort, SortSpec{Attr: attr, Order: Ascending})
			if nextKeyword != "" {
				return p.parseClause(nextLower, nextPos)
			}
		}

		c, ok := p.lx.readChar()
		if !ok || c != ',' {
			if ok {
				p.lx.unreadByte()
			}
			return nil
		}
	}
}

func (p *parser) parseFormat() error {
	name, pos := p.lx.readWord(defaultStop)
	name = strings.ToLower(name)
	if name == "csv" {
		name = "cali"
	}
	sig, found := findDef(FormatterDefs(), name)
	if !found {
		return p.errAt(pos, "unknown formatter "+name)
	}
	args, err := p.parseArglist()
	if err != nil {
		return err
	}
	if !sig.accepts(len(args)) {
		return p.errAt(pos, "invalid number of arguments for formatter "+name)
	}
	p.spec.Format = FormatSpec{Name: sig.Name, Args: args}
	return nil
}

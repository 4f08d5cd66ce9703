// Copyright © 2024 The ELPS authors

package snapshot

import (
	"fmt"
	"sync"

	parsec "github.com/prataprc/goparsec"
)

/*
The expression grammar is the subset of C that visualizer templates use.

	expr     := or
	or       := and ('||' and)*
	and      := eq ('&&' eq)*
	eq       := rel (('=='|'!=') rel)*
	rel      := add (('<='|'>='|'<'|'>') add)*
	add      := mul (('+'|'-') mul)*
	mul      := unary (('*'|'/'|'%') unary)*
	unary    := cast unary | ('!'|'-'|'*'|'&') unary | postfix
	postfix  := primary ('->' ident | '.' ident | '[' expr ']')*
	primary  := '(' expr ')' | number | char | string | keyword
	          | qualified | ident
*/

// SyntaxError reports an expression the grammar does not accept.
type SyntaxError struct {
	Expr string
	// Pos is the 1-based offset where parsing stopped.
	Pos int
}

func (err *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in expression %q at offset %d", err.Expr, err.Pos)
}

var (
	exprParserOnce sync.Once
	exprParser     parsec.Parser
)

func parseExpr(text string) (exprNode, error) {
	exprParserOnce.Do(func() {
		exprParser = newExprParser()
	})
	s := parsec.NewScanner([]byte(text))
	root, s := exprParser(s)
	_, s = s.SkipWS()
	if root == nil || !s.Endof() {
		return nil, &SyntaxError{Expr: text, Pos: s.GetCursor() + 1}
	}
	return root.(exprNode), nil
}

func newExprParser() parsec.Parser {
	var expr, unary parsec.Parser

	lparen := parsec.Atom("(", "LPAREN")
	rparen := parsec.Atom(")", "RPAREN")
	lbrack := parsec.Atom("[", "LBRACK")
	rbrack := parsec.Atom("]", "RBRACK")

	hexLit := parsec.Token(`0[xX][0-9a-fA-F]+[uUlL]*`, "HEX")
	floatLit := parsec.Token(`(?:[0-9]+\.[0-9]+(?:[eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+)[fF]?`, "FLOAT")
	intLit := parsec.Token(`[0-9]+[uUlL]*`, "INT")
	charLit := parsec.Token(`'(\\.|[^'\\])+'`, "CHAR")
	strLit := parsec.Token(`"(\\.|[^"\\])*"`, "STRING")
	keyword := parsec.Token(`(true|false|nullptr|NULL)\b`, "KEYWORD")
	qualified := parsec.Token(`[A-Za-z_]\w*(<[^()]*?>)?(::[A-Za-z_~]\w*(<[^()]*?>)?)*::[A-Za-z_]\w*`, "QUALIFIED")
	ident := parsec.Token(`[A-Za-z_]\w*`, "IDENT")
	pointerCast := parsec.Token(`\(\s*[A-Za-z_][\w:<>,\s*&]*[*&]\s*\)`, "CAST")
	scalarCast := parsec.Token(`\(\s*(?:(?:unsigned|signed)\s+)?(?:char|short|int|long\s+long|long|float|double|bool|wchar_t|char16_t|char32_t|u?int(?:8|16|32|64)_t|size_t|ssize_t|ptrdiff_t|u?intptr_t|unsigned|signed)(?:\s+int)?\s*\)`, "CAST")

	primary := parsec.OrdChoice(first,
		parsec.And(nodeParen, lparen, &expr, rparen),
		parsec.And(nodeLiteral, floatLit),
		parsec.And(nodeLiteral, hexLit),
		parsec.And(nodeLiteral, intLit),
		parsec.And(nodeLiteral, charLit),
		parsec.And(nodeLiteral, strLit),
		parsec.And(nodeLiteral, keyword),
		parsec.And(nodeQualified, qualified),
		parsec.And(nodeIdent, ident),
	)
	suffix := parsec.OrdChoice(first,
		parsec.And(nodeSuffix, parsec.Atom("->", "ARROW"), ident),
		parsec.And(nodeSuffix, parsec.Atom(".", "DOT"), ident),
		parsec.And(nodeSuffix, lbrack, &expr, rbrack),
	)
	postfix := parsec.And(foldPostfix, primary, parsec.Kleene(collect, suffix))

	unary = parsec.OrdChoice(first,
		parsec.And(nodeCast, parsec.OrdChoice(first, pointerCast, scalarCast), &unary),
		parsec.And(nodeUnary, parsec.Token(`(?:!|-|\*|&)`, "UNARY"), &unary),
		postfix,
	)

	level := func(operand interface{}, op parsec.Parser) parsec.Parser {
		tail := parsec.Kleene(collect, parsec.And(pairOp, op, operand))
		return parsec.And(foldBinary, operand, tail)
	}
	mul := level(&unary, parsec.Token(`[*/%]`, "MUL"))
	add := level(mul, parsec.Token(`[+-]`, "ADD"))
	rel := level(add, parsec.Token(`(?:<=|>=|<|>)`, "REL"))
	eq := level(rel, parsec.Token(`(?:==|!=)`, "EQ"))
	and := level(eq, parsec.Atom("&&", "AND"))
	expr = level(and, parsec.Atom("||", "OR"))
	return expr
}

type nodes []parsec.ParsecNode

type opPair struct {
	op  *parsec.Terminal
	rhs exprNode
}

type suffixOp struct {
	kind  string
	name  string
	index exprNode
	pos   int
}

func first(ns []parsec.ParsecNode) parsec.ParsecNode {
	if len(ns) == 0 {
		return nil
	}
	return ns[0]
}

func collect(ns []parsec.ParsecNode) parsec.ParsecNode {
	return nodes(ns)
}

func terminal(n parsec.ParsecNode) *parsec.Terminal {
	return n.(*parsec.Terminal)
}

func nodeParen(ns []parsec.ParsecNode) parsec.ParsecNode {
	return ns[1]
}

func nodeLiteral(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	return &literalNode{kind: t.Name, text: t.Value, pos: t.Position}
}

func nodeQualified(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	return &qualifiedNode{ref: t.Value, pos: t.Position}
}

func nodeIdent(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	return &identNode{name: t.Value, pos: t.Position}
}

func nodeSuffix(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	switch t.Name {
	case "LBRACK":
		return &suffixOp{kind: "[]", index: ns[1].(exprNode), pos: t.Position}
	default:
		return &suffixOp{kind: t.Value, name: terminal(ns[1]).Value, pos: t.Position}
	}
}

func foldPostfix(ns []parsec.ParsecNode) parsec.ParsecNode {
	x := ns[0].(exprNode)
	for _, n := range ns[1].(nodes) {
		op := n.(*suffixOp)
		switch op.kind {
		case "[]":
			x = &indexNode{x: x, index: op.index, pos: op.pos}
		default:
			x = &memberNode{x: x, name: op.name, arrow: op.kind == "->", pos: op.pos}
		}
	}
	return x
}

func nodeCast(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	name := t.Value[1 : len(t.Value)-1]
	return &castNode{typeName: name, x: ns[1].(exprNode), pos: t.Position}
}

func nodeUnary(ns []parsec.ParsecNode) parsec.ParsecNode {
	t := terminal(ns[0])
	return &unaryNode{op: t.Value, x: ns[1].(exprNode), pos: t.Position}
}

func pairOp(ns []parsec.ParsecNode) parsec.ParsecNode {
	return &opPair{op: terminal(ns[0]), rhs: ns[1].(exprNode)}
}

func foldBinary(ns []parsec.ParsecNode) parsec.ParsecNode {
	x := ns[0].(exprNode)
	for _, n := range ns[1].(nodes) {
		p := n.(*opPair)
		x = &binaryNode{op: p.op.Value, x: x, y: p.rhs, pos: p.op.Position}
	}
	return x
}

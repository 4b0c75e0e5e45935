package bsdl

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes the VHDL subset BSDL files are written in. Keywords are
// case-insensitive and must come before Ident.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},

	{Name: "KwEntity", Pattern: `(?i)\bENTITY\b`},
	{Name: "KwIs", Pattern: `(?i)\bIS\b`},
	{Name: "KwEnd", Pattern: `(?i)\bEND\b`},
	{Name: "KwGeneric", Pattern: `(?i)\bGENERIC\b`},
	{Name: "KwPort", Pattern: `(?i)\bPORT\b`},
	{Name: "KwUse", Pattern: `(?i)\bUSE\b`},
	{Name: "KwAll", Pattern: `(?i)\bALL\b`},
	{Name: "KwAttribute", Pattern: `(?i)\bATTRIBUTE\b`},
	{Name: "KwOf", Pattern: `(?i)\bOF\b`},
	{Name: "KwConstant", Pattern: `(?i)\bCONSTANT\b`},

	// Port modes and types.
	{Name: "KwMode", Pattern: `(?i)\b(INOUT|IN|OUT|BUFFER|LINKAGE)\b`},
	{Name: "KwType", Pattern: `(?i)\b(BIT_VECTOR|BIT|STRING|INTEGER|REAL|BOOLEAN)\b`},
	{Name: "KwTrue", Pattern: `(?i)\bTRUE\b`},
	{Name: "KwFalse", Pattern: `(?i)\bFALSE\b`},

	{Name: "Assign", Pattern: `:=`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Concat", Pattern: `&`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Real", Pattern: `[-+]?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`},
	{Name: "Integer", Pattern: `[-+]?[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_]*`},
	{Name: "Asterisk", Pattern: `\*`},
})

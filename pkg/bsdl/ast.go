package bsdl

import "strings"

// File is a parsed BSDL file. A file carries exactly one entity.
type File struct {
	Entity *Entity `@@`
}

// Entity is the top-level declaration:
//
//	entity STM32F4 is ... end STM32F4;
type Entity struct {
	Name    string         `KwEntity @Ident KwIs`
	Generic *GenericClause `@@?`
	Port    *PortClause    `@@?`
	Body    []*Statement   `@@*`
	EndName string         `KwEnd ( KwEntity )? @Ident? Semicolon`
}

// Statement is one declaration inside the entity body.
type Statement struct {
	Use       *UseClause `  @@`
	Constant  *Constant  `| @@`
	Attribute *Attribute `| @@`
}

// GenericClause holds the entity generics, usually only PHYSICAL_PIN_MAP.
type GenericClause struct {
	Generics []*Generic `KwGeneric LParen ( @@ ( Semicolon @@ )* )? RParen Semicolon`
}

type Generic struct {
	Name    string  `@Ident`
	Type    string  `Colon @( Ident | KwType )`
	Default *string `( Assign @String )?`
}

// PortClause lists the entity signals.
type PortClause struct {
	Ports []*Port `KwPort LParen ( @@ ( Semicolon @@ )* Semicolon? )? RParen Semicolon`
}

// Port declares one or more signals sharing a mode and type:
//
//	TCK, TMS, TDI : in bit;
type Port struct {
	Names []string   `@Ident ( Comma @Ident )*`
	Mode  string     `Colon @KwMode`
	Type  string     `@KwType`
	Range *RangeSpec `@@?`
}

// RangeSpec is a bit_vector range such as (1 to 8) or (7 downto 0).
type RangeSpec struct {
	From      int    `LParen @Integer`
	Direction string `@Ident`
	To        int    `@Integer RParen`
}

// Width returns the number of signals in the range.
func (r *RangeSpec) Width() int {
	if r.From > r.To {
		return r.From - r.To + 1
	}
	return r.To - r.From + 1
}

// UseClause names the standard package, e.g. use STD_1149_1_2001.all;
type UseClause struct {
	Package string `KwUse @Ident`
	Member  string `Dot @( Ident | KwAll ) Semicolon`
}

// Constant is a constant declaration, typically the PIN_MAP_STRING for a
// package.
type Constant struct {
	Name  string      `KwConstant @Ident`
	Type  string      `Colon @Ident`
	Value *Expression `Assign @@ Semicolon`
}

// Attribute is an attribute specification:
//
//	attribute INSTRUCTION_LENGTH of STM32F4 : entity is 5;
type Attribute struct {
	Name  string      `KwAttribute @Ident`
	Of    string      `KwOf @Ident`
	Class string      `Colon @( Ident | KwEntity | KwConstant )`
	Value *Expression `KwIs @@ Semicolon`
}

// Expression is a single value or a chain of strings joined with &.
type Expression struct {
	Terms []*Term `@@ ( Concat @@ )*`
}

type Term struct {
	String  *string  `  @String`
	Real    *float64 `| @Real`
	Integer *int     `| @Integer`
	Ident   *string  `| @Ident`
	Tuple   *Tuple   `| @@`
	True    bool     `| @KwTrue`
	False   bool     `| @KwFalse`
}

// Tuple is a parenthesised value list such as (10.0e6, BOTH).
type Tuple struct {
	Values []*Expression `LParen @@ ( Comma @@ )* RParen`
}

// Text joins the string terms of the expression with their quotes removed.
func (e *Expression) Text() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	for _, t := range e.Terms {
		if t.String != nil {
			b.WriteString(unquote(*t.String))
		}
	}
	return b.String()
}

// Int returns the value of a single integer expression.
func (e *Expression) Int() (int, bool) {
	if e == nil || len(e.Terms) != 1 || e.Terms[0].Integer == nil {
		return 0, false
	}
	return *e.Terms[0].Integer, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Attributes returns the attribute specifications in file order.
func (e *Entity) Attributes() []*Attribute {
	var out []*Attribute
	for _, st := range e.Body {
		if st.Attribute != nil {
			out = append(out, st.Attribute)
		}
	}
	return out
}

// Attribute returns the first attribute called name, ignoring case.
func (e *Entity) Attribute(name string) *Attribute {
	for _, a := range e.Attributes() {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}

// Constants returns the constant declarations in file order.
func (e *Entity) Constants() []*Constant {
	var out []*Constant
	for _, st := range e.Body {
		if st.Constant != nil {
			out = append(out, st.Constant)
		}
	}
	return out
}

// Signals returns every declared port name in declaration order.
func (e *Entity) Signals() []string {
	if e.Port == nil {
		return nil
	}
	var out []string
	for _, p := range e.Port.Ports {
		out = append(out, p.Names...)
	}
	return out
}

package bsdl

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

// Parser parses BSDL files. It is safe to reuse for many files.
type Parser struct {
	parser *participle.Parser[File]
}

func NewParser() (*Parser, error) {
	p, err := participle.Build[File](
		participle.Lexer(Lexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("bsdl: build parser: %w", err)
	}
	return &Parser{parser: p}, nil
}

// Parse reads one file from r. name is only used in error positions.
func (p *Parser) Parse(name string, r io.Reader) (*File, error) {
	f, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	return f, nil
}

func (p *Parser) ParseString(input string) (*File, error) {
	f, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	return f, nil
}

func (p *Parser) ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	defer fh.Close()
	return p.Parse(path, fh)
}

package dc

import (
	"fmt"
	"io"
	"strconv"
	"text/scanner"
)

// parseSchema parses one schema file's contents into a sequence of classes.
// The grammar is intentionally small — this is a toy DSL local to the
// cluster, not a format any corpus library already parses, so `text/scanner`
// from the standard library is used for tokenising rather than reaching for
// a generic parser-combinator dependency.
//
//	dclass Name {
//	    <type> <field> <keyword>* ;
//	    ...
//	}
//
// <type> is one of the scalar keywords (uint8, uint16, ..., string, blob)
// optionally followed by "[N]" for a fixed-size array or "[]" for a
// variable-length array.
func parseSchema(name string, r io.Reader) ([]*Class, error) {
	var s scanner.Scanner
	s.Init(r)
	s.Filename = name
	s.Mode = scanner.ScanIdents | scanner.ScanInts

	var classes []*Class
	var nextFieldIndex uint16

	next := func() (string, rune) {
		tok := s.Scan()
		return s.TokenText(), tok
	}

	expect := func(want string) error {
		text, tok := next()
		if tok == scanner.EOF {
			return fmt.Errorf("dc: %s: unexpected EOF, wanted %q", name, want)
		}
		if text != want {
			return fmt.Errorf("dc: %s:%s: expected %q, got %q", name, s.Pos(), want, text)
		}
		return nil
	}

	for {
		text, tok := next()
		if tok == scanner.EOF {
			break
		}
		if text != "dclass" {
			return nil, fmt.Errorf("dc: %s:%s: expected 'dclass', got %q", name, s.Pos(), text)
		}
		className, classTok := next()
		if classTok != scanner.Ident {
			return nil, fmt.Errorf("dc: %s:%s: expected class name", name, s.Pos())
		}
		if err := expect("{"); err != nil {
			return nil, err
		}

		class := newClass(className, 0)
		nextFieldIndex = 0

		for {
			peekText, peekTok := next()
			if peekTok == scanner.EOF {
				return nil, fmt.Errorf("dc: %s: unterminated dclass %s", name, className)
			}
			if peekText == "}" {
				break
			}

			typeName := peekText
			fieldType, err := scalarTypeByName(typeName)
			if err != nil {
				return nil, fmt.Errorf("dc: %s:%s: %w", name, s.Pos(), err)
			}

			// Optional array suffix: "[" ["N"] "]"
			savedPos := s.Pos()
			_ = savedPos
			if arrText, arrTok := peekRune(&s); arrTok == '[' {
				next() // consume '['
				countText, countTok := next()
				count := 0
				if countTok == scanner.Int {
					count, _ = strconv.Atoi(countText)
					if err := expect("]"); err != nil {
						return nil, err
					}
				} else if countText == "]" {
					// variable-length array, nothing to do
				} else {
					return nil, fmt.Errorf("dc: %s:%s: malformed array type", name, s.Pos())
				}
				fieldType = Array(fieldType, count)
			} else {
				_ = arrText
			}

			fieldName, fieldNameTok := next()
			if fieldNameTok != scanner.Ident {
				return nil, fmt.Errorf("dc: %s:%s: expected field name after type %s", name, s.Pos(), typeName)
			}

			var kw Keywords
			for {
				kwText, kwTok := next()
				if kwTok == scanner.EOF {
					return nil, fmt.Errorf("dc: %s: unterminated field declaration for %s", name, fieldName)
				}
				if kwText == ";" {
					break
				}
				switch kwText {
				case "required":
					kw.Required = true
				case "broadcast":
					kw.Broadcast = true
				case "ownsend":
					kw.OwnSend = true
				case "clsend":
					kw.ClSend = true
				case "ram":
					kw.Ram = true
				case "db":
					kw.DB = true
				default:
					return nil, fmt.Errorf("dc: %s:%s: unknown field keyword %q", name, s.Pos(), kwText)
				}
			}

			class.addField(&Field{
				Name:     fieldName,
				Index:    nextFieldIndex,
				Type:     fieldType,
				Keywords: kw,
			})
			nextFieldIndex++
		}

		classes = append(classes, class)
	}

	return classes, nil
}

// peekRune reports the next rune without consuming the scanner's token
// stream position for anything other than single-character punctuation.
func peekRune(s *scanner.Scanner) (string, rune) {
	r := s.Peek()
	if r == '[' {
		return "[", '['
	}
	return "", 0
}

func scalarTypeByName(name string) (*Type, error) {
	switch name {
	case "uint8":
		return scalar(KindUint8), nil
	case "uint16":
		return scalar(KindUint16), nil
	case "uint32":
		return scalar(KindUint32), nil
	case "uint64":
		return scalar(KindUint64), nil
	case "int8":
		return scalar(KindInt8), nil
	case "int16":
		return scalar(KindInt16), nil
	case "int32":
		return scalar(KindInt32), nil
	case "int64":
		return scalar(KindInt64), nil
	case "float32":
		return scalar(KindFloat32), nil
	case "float64":
		return scalar(KindFloat64), nil
	case "string":
		return scalar(KindString), nil
	case "blob":
		return scalar(KindBlob), nil
	default:
		return nil, fmt.Errorf("unknown field type %q", name)
	}
}

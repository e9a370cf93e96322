package parser

var KEYWORDS = map[string]TokenType{
	"fn":       FUN,
	"let":      LET,
	"if":       IF,
	"else":     ELSE,
	"return":   RETURN,
	"contract": MODULE,
	"assert":   ASSERT,
	"require":  REQUIRE,
	"use":      USE,
	"struct":   STRUCT,
	"writes":   WRITES,
	"reads":    READS,
	"ext":      EXT,
	"mut":      MUT,
	"while":    WHILE,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
}

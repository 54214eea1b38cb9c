package room

import "math/rand"

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 6
)

// CodeGenerator produces candidate room ids. It makes no uniqueness promise;
// the store retries until a candidate is free.
type CodeGenerator interface {
	Generate() string
}

type CodeGeneratorFunc func() string

func (f CodeGeneratorFunc) Generate() string { return f() }

// RandomCode draws CodeLength symbols uniformly from A-Z0-9.
type RandomCode struct{}

func (RandomCode) Generate() string {
	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(code)
}

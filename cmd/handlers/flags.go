package handlers

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// explicitBool is a bool flag that always takes a value, so both
// "--verbose true" and "--verbose=true" parse. pflag's own bool flag
// only accepts the second form.
type explicitBool bool

func newExplicitBool(def bool, p *bool) *explicitBool {
	*p = def
	return (*explicitBool)(p)
}

func (b *explicitBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", s)
	}
	*b = explicitBool(v)
	return nil
}

func (b *explicitBool) String() string {
	return strconv.FormatBool(bool(*b))
}

// Type reports "bool" so viper decodes the bound value as a bool.
func (b *explicitBool) Type() string {
	return "bool"
}

// boolVar registers an explicit-value bool flag on fs.
func boolVar(fs *pflag.FlagSet, p *bool, name string, def bool, usage string) {
	fs.Var(newExplicitBool(def, p), name, usage)
}

// flagError marks a command line parse failure.
type flagError struct {
	err error
}

func (e *flagError) Error() string { return e.err.Error() }

func (e *flagError) Unwrap() error { return e.err }

package main

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pepperpark/imapmover/internal/syncer"
)

// ruleValue appends to a rule list shared by several flags, so --include and
// --exclude keep their command-line order relative to each other.
type ruleValue struct {
	rules *[]syncer.Rule
	dir   syncer.Direction
}

var _ pflag.Value = (*ruleValue)(nil)

func (v *ruleValue) Set(pattern string) error {
	*v.rules = append(*v.rules, syncer.Rule{Direction: v.dir, Pattern: pattern})
	return nil
}

func (v *ruleValue) Type() string { return "pattern" }

func (v *ruleValue) String() string {
	var parts []string
	for _, r := range *v.rules {
		if r.Direction == v.dir {
			parts = append(parts, r.Pattern)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// noInboxValue is a boolean flag that appends an INBOX exclusion at its
// position in the command line.
type noInboxValue struct {
	rules *[]syncer.Rule
	set   bool
}

func (v *noInboxValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if b {
		*v.rules = append(*v.rules, syncer.ExcludeRule("INBOX"))
	}
	v.set = b
	return nil
}

func (v *noInboxValue) Type() string   { return "bool" }
func (v *noInboxValue) String() string { return strconv.FormatBool(v.set) }

// IsBoolFlag lets the flag be given without a value.
func (v *noInboxValue) IsBoolFlag() bool { return true }

func addRuleFlags(fs *pflag.FlagSet, rules *[]syncer.Rule) {
	fs.VarP(&ruleValue{rules: rules, dir: syncer.Include}, "include", "i", "Include source folders matching a glob (repeatable, applied in order)")
	fs.VarP(&ruleValue{rules: rules, dir: syncer.Exclude}, "exclude", "e", "Exclude source folders matching a glob (repeatable, applied in order)")
	f := fs.VarPF(&noInboxValue{rules: rules}, "no-inbox", "n", "Exclude INBOX from the folders to sync")
	f.NoOptDefVal = "true"
}

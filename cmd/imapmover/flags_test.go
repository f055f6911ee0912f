package main

import (
	"reflect"
	"testing"

	"github.com/spf13/pflag"

	"github.com/pepperpark/imapmover/internal/syncer"
)

func TestRuleFlagsKeepOrder(t *testing.T) {
	var rules []syncer.Rule
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addRuleFlags(fs, &rules)
	args := []string{"-e", "*", "--include", "Archive*", "-n", "--exclude=Archive/Spam", "-i", "INBOX"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []syncer.Rule{
		syncer.ExcludeRule("*"),
		syncer.IncludeRule("Archive*"),
		syncer.ExcludeRule("INBOX"),
		syncer.ExcludeRule("Archive/Spam"),
		syncer.IncludeRule("INBOX"),
	}
	if !reflect.DeepEqual(rules, want) {
		t.Fatalf("rules = %+v, want %+v", rules, want)
	}
}

func TestNoInboxFalse(t *testing.T) {
	var rules []syncer.Rule
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addRuleFlags(fs, &rules)
	if err := fs.Parse([]string{"--no-inbox=false"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("rules = %+v", rules)
	}
}

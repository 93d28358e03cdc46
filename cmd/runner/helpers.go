package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

// unknownFlags returns the flag arguments in args that fs does not define.
// Their values, if passed separately, are left in the positional arguments.
func unknownFlags(args []string, fs *pflag.FlagSet) []string {
	var unknown []string
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if i := strings.Index(name, "="); i >= 0 {
			name = name[:i]
		}
		if name == "" {
			continue
		}

		if strings.HasPrefix(arg, "--") {
			if fs.Lookup(name) == nil {
				unknown = append(unknown, arg)
			}
			continue
		}
		if fs.ShorthandLookup(name[:1]) == nil {
			unknown = append(unknown, arg)
		}
	}
	return unknown
}

// flagAliases maps alternative flag names onto their canonical names
func flagAliases(aliases map[string]string) func(*pflag.FlagSet, string) pflag.NormalizedName {
	return func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		return pflag.NormalizedName(name)
	}
}

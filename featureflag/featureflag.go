package featureflag

import (
	"sort"
	"strings"
)

// FeatureFlag is a lookup map for features that is enabled or disabled
type FeatureFlag map[Flag]struct{}

// New return a new feature flags initialized with list of flags. Flags are
// trimmed and upper cased so "disable_catalog" sets FlagDisableCatalog.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// IsSet reports whether flag is set.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs function `do ` if flag is set in the feature flags
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		return
	}
	do()
}

// List returns the set flags in alphabetical order.
func (f FeatureFlag) List() []string {
	list := make([]string, 0, len(f))
	for flag := range f {
		list = append(list, string(flag))
	}
	sort.Strings(list)
	return list
}

// Unknown returns the set flags that are not part of Known.
func (f FeatureFlag) Unknown() []string {
	known := make(map[Flag]struct{})
	for _, flag := range Known() {
		known[flag] = struct{}{}
	}

	var unknown []string
	for _, flag := range f.List() {
		if _, ok := known[Flag(flag)]; !ok {
			unknown = append(unknown, flag)
		}
	}
	return unknown
}

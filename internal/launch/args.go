package launch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daryltucker/kvharness/internal/model"
)

// ParseArgs parses `<config> [model_size] [profile=..] [sanitize=..] [eager=..]`.
// key=value tokens may appear in any order after the configuration.
func ParseArgs(args []string) (model.RunConfiguration, Options, error) {
	var opts Options
	if len(args) == 0 {
		return model.RunConfiguration{}, opts, fmt.Errorf("missing configuration (expected one of %s)", configList())
	}

	var size string
	seen := map[string]bool{}
	for _, tok := range args[1:] {
		key, val, isKV := strings.Cut(tok, "=")
		if !isKV {
			if _, err := model.ParseConfigName(tok, model.AllConfigs); err == nil {
				return model.RunConfiguration{}, opts, fmt.Errorf("multiple configurations given (%s and %s)", args[0], tok)
			}
			if size != "" {
				return model.RunConfiguration{}, opts, fmt.Errorf("unexpected argument %q", tok)
			}
			size = tok
			continue
		}
		if seen[key] {
			return model.RunConfiguration{}, opts, fmt.Errorf("%s given more than once", key)
		}
		seen[key] = true

		var err error
		switch key {
		case "profile":
			opts.Profile, err = parseBool(key, val)
		case "eager":
			opts.Eager, err = parseBool(key, val)
		case "sanitize":
			opts.Sanitize, err = ParseSanitizer(val)
		default:
			err = fmt.Errorf("unknown option %q (expected profile, sanitize or eager)", key)
		}
		if err != nil {
			return model.RunConfiguration{}, opts, err
		}
	}

	rc, err := model.ParseRunConfiguration(args[0], size)
	if err != nil {
		return model.RunConfiguration{}, opts, err
	}
	if opts.Profile && opts.Sanitize != SanitizeNone {
		return model.RunConfiguration{}, opts, ErrUnsupportedCombination
	}
	return rc, opts, nil
}

func parseBool(key, val string) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q (expected true or false)", key, val)
	}
	return b, nil
}

func configList() string {
	parts := make([]string, len(model.AllConfigs))
	for i, c := range model.AllConfigs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

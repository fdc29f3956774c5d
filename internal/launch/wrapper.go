package launch

import (
	"errors"
	"fmt"

	"github.com/daryltucker/kvharness/internal/model"
)

// ErrUnsupportedCombination is returned when both a profiler and a sanitizer are requested.
var ErrUnsupportedCombination = errors.New("profile and sanitize cannot be combined in one launch")

// SanitizerTool is a compute-sanitizer tool mode.
type SanitizerTool string

const (
	SanitizeNone      SanitizerTool = ""
	SanitizeMemcheck  SanitizerTool = "memcheck"
	SanitizeRacecheck SanitizerTool = "racecheck"
	SanitizeInitcheck SanitizerTool = "initcheck"
)

// ParseSanitizer maps the sanitize=... value to a tool. "true" means memcheck.
func ParseSanitizer(v string) (SanitizerTool, error) {
	switch v {
	case "false", "":
		return SanitizeNone, nil
	case "true", "memcheck":
		return SanitizeMemcheck, nil
	case "racecheck":
		return SanitizeRacecheck, nil
	case "initcheck":
		return SanitizeInitcheck, nil
	}
	return SanitizeNone, fmt.Errorf("invalid sanitize value %q (expected true, false, memcheck, racecheck or initcheck)", v)
}

func profilerWrapper(out string) *model.Wrapper {
	return &model.Wrapper{
		Tool: "nsys",
		Args: []string{
			"profile",
			"--trace=cuda,nvtx,osrt",
			"--force-overwrite", "true",
			"-o", out,
		},
		OutputPath: out + ".nsys-rep",
	}
}

func sanitizerWrapper(tool SanitizerTool, logFile string) *model.Wrapper {
	args := []string{"--tool", string(tool)}
	if tool == SanitizeMemcheck {
		args = append(args, "--leak-check", "full")
	}
	args = append(args, "--log-file", logFile)
	return &model.Wrapper{
		Tool:       "compute-sanitizer",
		Args:       args,
		OutputPath: logFile,
	}
}

// Completion: 100% - Utility module complete
package main

import (
	"fmt"
	"runtime"
	"strings"
)

// Arch is a target instruction set
type Arch int

const (
	ArchAMD64 Arch = iota
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

var legalArchs = []string{"amd64", "arm64"}

// ParseArch accepts Go and GCC style architecture names
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "amd64", "x86_64", "x86-64":
		return ArchAMD64, nil
	case "arm64", "aarch64":
		return ArchARM64, nil
	default:
		return -1, &ConfigError{Option: "arch", Value: s, Legal: legalArchs}
	}
}

// Target is the architecture and operating system code is generated for
type Target struct {
	Arch Arch
	OS   string
}

func (t Target) String() string {
	return t.Arch.String() + "-" + t.OS
}

// IsELF returns true if the target links ELF objects
func (t Target) IsELF() bool {
	switch t.OS {
	case "linux", "freebsd", "netbsd", "openbsd", "dragonfly", "solaris", "illumos", "android":
		return true
	}
	return false
}

// DefaultTarget returns the target for the current runtime
func DefaultTarget() (Target, error) {
	var arch Arch
	switch runtime.GOARCH {
	case "amd64":
		arch = ArchAMD64
	case "arm64":
		arch = ArchARM64
	default:
		return Target{}, &BackendError{
			Target: runtime.GOARCH + "-" + runtime.GOOS,
			Reason: fmt.Sprintf("no code generator for %s; pass --arch %s", runtime.GOARCH, strings.Join(legalArchs, " or --arch ")),
		}
	}
	return Target{Arch: arch, OS: runtime.GOOS}, nil
}

func hostOS() string {
	return runtime.GOOS
}

func hostArchOS() string {
	return runtime.GOARCH + "-" + runtime.GOOS
}

package device

import "runtime"

// Arch is the CPU architecture the backend is running on. NPU tiers are
// told apart by it: 64-bit parts (rk3588 class) answer the memory-size
// query, 32-bit parts (rv1126 class) do not.
type Arch string

const (
	ArchARM64   Arch = "ARM64"
	ArchARM7    Arch = "ARM7"
	ArchX86_64  Arch = "x86_64"
	ArchX86_32  Arch = "x86_32"
	ArchMIPS    Arch = "MIPS"
	ArchPPC64   Arch = "POWERPC64"
	ArchUnknown Arch = "UNKNOWN"
)

// DetectArch returns the architecture of the running binary.
func DetectArch() Arch {
	return archFromGOARCH(runtime.GOARCH)
}

func archFromGOARCH(goarch string) Arch {
	switch goarch {
	case "arm64":
		return ArchARM64
	case "arm":
		return ArchARM7
	case "amd64":
		return ArchX86_64
	case "386":
		return ArchX86_32
	case "mips", "mipsle", "mips64", "mips64le":
		return ArchMIPS
	case "ppc64", "ppc64le":
		return ArchPPC64
	default:
		return ArchUnknown
	}
}

// SupportsMemQuery reports whether the tier answers the memory-size query.
func (a Arch) SupportsMemQuery() bool {
	return a == ArchARM64
}

// IsNPUHost reports whether the architecture can host a supported NPU.
func (a Arch) IsNPUHost() bool {
	return a == ArchARM64 || a == ArchARM7
}

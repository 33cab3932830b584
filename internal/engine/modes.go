package engine

import (
	"fmt"
	"strings"
)

// Mode selects the operation.
type Mode int

const (
	ModeCopy Mode = iota
	ModeMove
	ModeRemove
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeMove:
		return "move"
	case ModeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// VerifyMode selects post-transfer verification.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifySize
	VerifyHash
	VerifyStrict
)

func (v VerifyMode) String() string {
	switch v {
	case VerifyNone:
		return "none"
	case VerifySize:
		return "size"
	case VerifyHash:
		return "hash"
	case VerifyStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseVerifyMode accepts none, size, hash and strict.
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return VerifyNone, nil
	case "size", "sizeonly", "size-only":
		return VerifySize, nil
	case "hash":
		return VerifyHash, nil
	case "strict", "stricthash", "strict-hash":
		return VerifyStrict, nil
	default:
		return VerifyNone, fmt.Errorf("unknown verify mode %q (want none, size, hash or strict)", s)
	}
}

// ReflinkMode controls copy-on-write cloning.
type ReflinkMode int

const (
	ReflinkAuto ReflinkMode = iota
	ReflinkForce
	ReflinkNever
)

func (r ReflinkMode) String() string {
	switch r {
	case ReflinkAuto:
		return "auto"
	case ReflinkForce:
		return "force"
	case ReflinkNever:
		return "never"
	default:
		return "unknown"
	}
}

// ParseReflinkMode accepts auto, force (or always) and never.
func ParseReflinkMode(s string) (ReflinkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ReflinkAuto, nil
	case "force", "always":
		return ReflinkForce, nil
	case "never", "off":
		return ReflinkNever, nil
	default:
		return ReflinkAuto, fmt.Errorf("unknown reflink mode %q (want auto, force or never)", s)
	}
}

// SparseMode controls hole handling during stream copies.
type SparseMode int

const (
	SparseAuto SparseMode = iota
	SparseAlways
	SparseNever
)

func (s SparseMode) String() string {
	switch s {
	case SparseAuto:
		return "auto"
	case SparseAlways:
		return "always"
	case SparseNever:
		return "never"
	default:
		return "unknown"
	}
}

// ParseSparseMode accepts auto, always and never.
func ParseSparseMode(s string) (SparseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SparseAuto, nil
	case "always":
		return SparseAlways, nil
	case "never", "off":
		return SparseNever, nil
	default:
		return SparseAuto, fmt.Errorf("unknown sparse mode %q (want auto, always or never)", s)
	}
}

// HashAlgo selects the verification digest.
type HashAlgo int

const (
	HashBLAKE3 HashAlgo = iota
	HashXXH64
)

func (h HashAlgo) String() string {
	switch h {
	case HashBLAKE3:
		return "blake3"
	case HashXXH64:
		return "xxh64"
	default:
		return "unknown"
	}
}

// ParseHashAlgo accepts blake3 and xxh64 (or xxhash).
func ParseHashAlgo(s string) (HashAlgo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blake3", "b3":
		return HashBLAKE3, nil
	case "xxh64", "xxhash", "xxh":
		return HashXXH64, nil
	default:
		return HashBLAKE3, fmt.Errorf("unknown hash %q (want blake3 or xxh64)", s)
	}
}

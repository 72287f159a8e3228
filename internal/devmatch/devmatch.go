// Package devmatch decides which remote development builds an uploaded
// package file supersedes.
//
// The rule is a convention over file names, kept behind the Matcher
// interface so release pipelines with different naming schemes can
// plug in their own.
package devmatch

import (
	"strconv"
	"strings"
)

// Matcher reports which of the existing object names are development
// builds superseded by candidate. Implementations must be pure: no
// network, no clock, and the same inputs always produce the same
// output. The candidate itself is never part of the result.
type Matcher interface {
	Match(candidate string, existing []string) []string
}

// Func adapts a function to the Matcher interface.
type Func func(candidate string, existing []string) []string

// Match calls f(candidate, existing).
func (f Func) Match(candidate string, existing []string) []string {
	return f(candidate, existing)
}

// SeriesMatcher matches development builds of the same release series.
//
// File names are read as <dist>-<version>[-<tags>].<ext> with ext one
// of .whl, .tar.gz, .tgz, .zip or .egg. A version is a dotted release
// number optionally followed by a .devN segment; only .devN marks a
// development build. An existing file is superseded when it has the
// same distribution (normalized), the same trailing tags and the same
// release number as the candidate, and is a development build the
// candidate outranks: a final release outranks every dev build of its
// release, a dev build outranks lower dev numbers.
//
// Files that do not follow the naming scheme are never matched, and an
// unparseable candidate matches nothing. Versions carrying segments
// the rule does not model (pre-releases, post-releases, local version
// labels) take no part in pruning on either side: deleting a release
// artifact on a misread version number is not recoverable.
type SeriesMatcher struct{}

var _ Matcher = SeriesMatcher{}

// Match implements Matcher.
func (SeriesMatcher) Match(candidate string, existing []string) []string {
	cand, ok := parse(candidate)
	if !ok || !cand.ver.exact {
		return nil
	}
	var out []string
	for _, name := range existing {
		if name == candidate {
			continue
		}
		p, ok := parse(name)
		if !ok || !p.ver.exact || !p.ver.isDev {
			continue
		}
		if p.dist != cand.dist || p.tags != cand.tags {
			continue
		}
		if compareRelease(p.ver.release, cand.ver.release) != 0 {
			continue
		}
		if cand.ver.isDev && p.ver.dev >= cand.ver.dev {
			continue
		}
		out = append(out, name)
	}
	return out
}

// archiveExts lists recognized package archive extensions. The
// two-suffix extension must be checked before its plain counterpart.
var archiveExts = []string{".tar.gz", ".tgz", ".whl", ".zip", ".egg"}

type parsed struct {
	dist string
	ver  version
	tags string
}

type version struct {
	release []int
	isDev   bool
	dev     int
	// exact is false when the version carries segments the matcher
	// does not model, like rc or post markers.
	exact bool
}

func parse(name string) (parsed, bool) {
	stem, ok := splitExt(name)
	if !ok {
		return parsed{}, false
	}
	parts := strings.Split(stem, "-")
	verIdx := -1
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" && parts[i][0] >= '0' && parts[i][0] <= '9' {
			verIdx = i
			break
		}
	}
	if verIdx == -1 {
		return parsed{}, false
	}
	ver, ok := parseVersion(parts[verIdx])
	if !ok {
		return parsed{}, false
	}
	return parsed{
		dist: normalize(strings.Join(parts[:verIdx], "-")),
		ver:  ver,
		tags: strings.Join(parts[verIdx+1:], "-"),
	}, true
}

func splitExt(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if len(name) > len(ext) && strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)], true
		}
	}
	return "", false
}

// parseVersion reads a dotted release number with an optional .devN
// segment. Trailing segments beyond that (rc1, post1, local versions)
// leave the version valid but inexact.
func parseVersion(s string) (version, bool) {
	segs := strings.Split(s, ".")
	v := version{exact: true}
	i := 0
	for ; i < len(segs); i++ {
		if !isDigits(segs[i]) {
			break
		}
		n, err := strconv.Atoi(segs[i])
		if err != nil {
			return version{}, false
		}
		v.release = append(v.release, n)
	}
	if len(v.release) == 0 {
		return version{}, false
	}
	if i < len(segs) {
		if rest, found := strings.CutPrefix(segs[i], "dev"); found {
			v.isDev = true
			if rest != "" {
				n, err := strconv.Atoi(rest)
				if err != nil {
					return version{}, false
				}
				v.dev = n
			}
			i++
		}
	}
	if i < len(segs) {
		v.exact = false
	}
	return v, true
}

// normalize lowercases a distribution name and collapses runs of the
// separator characters to a single dash, the way package installers
// compare names.
func normalize(dist string) string {
	var b strings.Builder
	b.Grow(len(dist))
	prevDash := false
	for _, r := range strings.ToLower(dist) {
		if r == '-' || r == '_' || r == '.' {
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
			continue
		}
		prevDash = false
		b.WriteRune(r)
	}
	return b.String()
}

// compareRelease compares dotted release numbers, treating missing
// trailing components as zero so 1.0 equals 1.0.0.
func compareRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

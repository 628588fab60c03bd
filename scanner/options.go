// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"path/filepath"
	"regexp"
)

// DefaultIgnorePatterns are excluded from every scan regardless of
// configured patterns: the metadata directory and one common OS-noise file.
var DefaultIgnorePatterns = []string{".wild/**", ".DS_Store"}

// Option configures Scan.
type Option func(*options)

type options struct {
	ignorePatterns []string
	ignoreRegexps  []*regexp.Regexp
	followSymlinks bool
}

func defaultOptions() *options {
	return &options{ignorePatterns: append([]string{}, DefaultIgnorePatterns...)}
}

// WithIgnore adds glob patterns (matched against the path relative to the
// scan root, and against the path's base name) to the ignore set.
func WithIgnore(patterns ...string) Option {
	return func(o *options) {
		o.ignorePatterns = append(o.ignorePatterns, patterns...)
	}
}

// WithIgnoreRegexp adds a regular expression, matched against the relative
// path, to the ignore set. WithIgnore covers prefix/glob matching; this
// covers regex.
func WithIgnoreRegexp(re *regexp.Regexp) Option {
	return func(o *options) {
		o.ignoreRegexps = append(o.ignoreRegexps, re)
	}
}

// WithFollowSymlinks dereferences symlinks during the walk instead of
// recording them by target path.
func WithFollowSymlinks() Option {
	return func(o *options) {
		o.followSymlinks = true
	}
}

func (o *options) shouldIgnore(relPath string, isDir bool) bool {
	for _, pattern := range o.ignorePatterns {
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
		if isDir && len(pattern) > 3 && pattern[len(pattern)-3:] == "/**" {
			prefix := pattern[:len(pattern)-3]
			if matched, _ := filepath.Match(prefix, relPath); matched {
				return true
			}
		}
		// A non-directory path beneath an ignored "prefix/**" directory.
		if len(pattern) > 3 && pattern[len(pattern)-3:] == "/**" {
			prefix := pattern[:len(pattern)-3]
			if relPath == prefix || (len(relPath) > len(prefix) && relPath[:len(prefix)+1] == prefix+"/") {
				return true
			}
		}
	}
	for _, re := range o.ignoreRegexps {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

package config

import (
	"path/filepath"
	"regexp"
)

// ApprovalPolicy classifies tool names as approval-required or auto-executable.
type ApprovalPolicy struct {
	require []string
	auto    []string
}

// NewApprovalPolicy builds a policy from the approval section.
func NewApprovalPolicy(cfg ApprovalConfig) *ApprovalPolicy {
	return &ApprovalPolicy{require: cfg.Require, auto: cfg.Auto}
}

// RequiresApproval reports whether calls to toolName must wait for a human.
// Auto patterns take precedence over Require patterns.
func (p *ApprovalPolicy) RequiresApproval(toolName string) bool {
	for _, pattern := range p.auto {
		if matchPattern(toolName, pattern) {
			return false
		}
	}
	for _, pattern := range p.require {
		if matchPattern(toolName, pattern) {
			return true
		}
	}
	return false
}

// matchPattern matches a string against a pattern (glob or regex)
func matchPattern(str, pattern string) bool {
	if isRegexPattern(pattern) {
		matched, err := regexp.MatchString(pattern[1:len(pattern)-1], str)
		return err == nil && matched
	}
	matched, err := filepath.Match(pattern, str)
	return err == nil && matched
}

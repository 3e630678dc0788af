// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsList string

var commonPasswords = loadCommonPasswords(commonPasswordsList)

func loadCommonPasswords(list string) map[string]struct{} {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(list))
	for scanner.Scan() {
		if p := strings.ToLower(strings.TrimSpace(scanner.Text())); p != "" && !strings.HasPrefix(p, "#") {
			set[p] = struct{}{}
		}
	}
	return set
}

// Policy violation codes. They double as i18n message IDs.
const (
	CodeTooShort        = "password_too_short"
	CodeEntirelyNumeric = "password_entirely_numeric"
	CodeCommon          = "password_too_common"
	CodeTooSimilar      = "password_too_similar"
)

// PasswordValidator checks new passwords against the account password policy.
type PasswordValidator struct {
	MinLength            int
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
	// MaxSimilarity is the longest-common-subsequence ratio above which a
	// password counts as derived from a user attribute.
	MaxSimilarity float64
}

// DefaultPasswordValidator returns the policy used for admin accounts.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:            12,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
		MaxSimilarity:        0.7,
	}
}

// Violation is a single broken password rule.
type Violation struct {
	Code    string
	Message string
}

// PolicyError lists every rule a password broke.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return "password does not meet requirements"
	}
	return e.Violations[0].Message
}

// Codes returns the violation codes in order.
func (e *PolicyError) Codes() []string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Unwrap lets callers match the policy failure with errors.Is(err, ErrWeakPassword).
func (e *PolicyError) Unwrap() error {
	return ErrWeakPassword
}

// Validate returns nil for an acceptable password or a *PolicyError.
// userAttributes are values the password must not resemble, such as the
// username or email.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) error {
	var violations []Violation

	if utf8.RuneCountInString(password) < v.MinLength {
		violations = append(violations, Violation{
			Code:    CodeTooShort,
			Message: fmt.Sprintf("Password must be at least %d characters long.", v.MinLength),
		})
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		violations = append(violations, Violation{
			Code:    CodeEntirelyNumeric,
			Message: "Password cannot be entirely numeric.",
		})
	}

	if v.CheckCommonPasswords {
		if _, ok := commonPasswords[strings.ToLower(password)]; ok {
			violations = append(violations, Violation{
				Code:    CodeCommon,
				Message: "This password is too common.",
			})
		}
	}

	if v.CheckUserSimilarity && v.resemblesAny(password, userAttributes) {
		violations = append(violations, Violation{
			Code:    CodeTooSimilar,
			Message: "Password is too similar to the account details.",
		})
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}

func (v *PasswordValidator) resemblesAny(password string, attributes []string) bool {
	p := strings.ToLower(password)
	for _, attr := range attributes {
		a := strings.ToLower(attr)
		if a == "" {
			continue
		}
		// Compare the local part of email addresses too.
		candidates := []string{a}
		if local, _, ok := strings.Cut(a, "@"); ok && local != "" {
			candidates = append(candidates, local)
		}
		for _, c := range candidates {
			if strings.Contains(p, c) || strings.Contains(c, p) || similarity(p, c) > v.MaxSimilarity {
				return true
			}
		}
	}
	return false
}

// similarity is the longest common subsequence length over the longer length.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return float64(prev[len(b)]) / float64(max(len(a), len(b)))
}

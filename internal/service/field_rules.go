package service

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Field-level rules for directory accounts. These mirror the registrar's
// account policy and are applied both at staging time and again at execution.
var (
	usernamePattern   = regexp.MustCompile(`^[A-Za-z0-9_]{4,20}$`)
	pinPattern        = regexp.MustCompile(`^[0-9]{6}$`)
	namePattern       = regexp.MustCompile(`^[A-Za-z ]{2,40}$`)
	departmentPattern = regexp.MustCompile(`^[A-Za-z ]+$`)
)

// institutional mail domain required for all directory contact addresses.
const emailDomain = "@school.edu"

func validUsername(u string) bool {
	return usernamePattern.MatchString(u)
}

func validPin(p string) bool {
	return pinPattern.MatchString(p)
}

func validName(n string) bool {
	return namePattern.MatchString(n)
}

func validDepartment(d string) bool {
	if d == "" {
		return true
	}
	return departmentPattern.MatchString(d)
}

// validPassword requires at least eight characters with an upper-case letter,
// a lower-case letter, and a digit.
func validPassword(p string) bool {
	if len(p) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

func validInstitutionalEmail(e string) bool {
	e = strings.TrimSpace(e)
	if !strings.Contains(e, "@") || strings.Count(e, "@") != 1 {
		return false
	}
	return strings.HasSuffix(e, emailDomain)
}

func validDateOfBirth(raw string, now time.Time) bool {
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return false
	}
	return ts.Before(now)
}

func validHireDate(raw string, now time.Time) bool {
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return false
	}
	return !ts.After(now)
}

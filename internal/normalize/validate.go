package normalize

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

var validate = validator.New()

// EmailUsable reports whether s is a syntactically valid email address.
func EmailUsable(s string) bool {
	if s == "" {
		return false
	}
	return validate.Var(s, "required,email") == nil
}

// PhoneValid reports whether an already normalized "+<digits>" phone is a
// dialable number. It never rewrites the value.
func PhoneValid(e164 string) bool {
	if !strings.HasPrefix(e164, "+") {
		return false
	}
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

var exportDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

// Date converts the "DD/MM/YYYY[ HH:MM[:SS]]" format used by sales exports
// to ISO-8601 UTC. Other non-empty input is returned trimmed.
func Date(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	m := exportDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	hh, mm, ss := m[4], m[5], m[6]
	if hh == "" {
		hh, mm = "00", "00"
	}
	if ss == "" {
		ss = "00"
	}
	return m[3] + "-" + pad2(m[2]) + "-" + pad2(m[1]) + "T" + pad2(hh) + ":" + mm + ":" + ss + "Z"
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

package domain

import (
	"fmt"
	"strings"
)

// CourseRunKey is a parsed course run identifier. Both the current
// "course-v1:Org+Number+Run" form and the legacy "Org/Number/Run" form parse.
type CourseRunKey struct {
	Org    string
	Number string
	Run    string
}

func ParseCourseRunKey(key string) (CourseRunKey, error) {
	key = strings.TrimSpace(key)
	var parts []string
	switch {
	case strings.HasPrefix(key, "course-v1:"):
		parts = strings.Split(strings.TrimPrefix(key, "course-v1:"), "+")
	case strings.Count(key, "/") == 2:
		parts = strings.Split(key, "/")
	default:
		return CourseRunKey{}, fmt.Errorf("invalid course run key %q", key)
	}
	if len(parts) != 3 {
		return CourseRunKey{}, fmt.Errorf("invalid course run key %q", key)
	}
	for _, p := range parts {
		if p == "" {
			return CourseRunKey{}, fmt.Errorf("invalid course run key %q", key)
		}
	}
	return CourseRunKey{Org: parts[0], Number: parts[1], Run: parts[2]}, nil
}

// CourseKey is the run-independent course identifier, "Org+Number".
func (k CourseRunKey) CourseKey() string {
	return k.Org + "+" + k.Number
}

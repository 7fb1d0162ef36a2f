package timeutils

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

var ErrInvalidFormat = errors.New("invalid date format")

// Shortcuts are named formats accepted wherever a date format is.
var Shortcuts = map[string]string{
	"standard": "%Y/%m/%d",
	"compact":  "%Y%m%d",
	"wide":     "%Y-%m-%d",
	"time":     "%H:%M:%S",
	"datetime": "%Y/%m/%d %H:%M:%S",
}

// ExpandFormat resolves a shortcut name to its format string.
func ExpandFormat(format string) string {
	if f, ok := Shortcuts[format]; ok {
		return f
	}
	return format
}

// Compile parses format once so it can render many dates. %f renders
// microseconds.
func Compile(format string) (*strftime.Strftime, error) {
	format = ExpandFormat(format)
	if format == "" {
		return nil, fmt.Errorf("%w: empty format", ErrInvalidFormat)
	}

	p, err := strftime.New(format, strftime.WithMicroseconds('f'))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, format, err)
	}
	return p, nil
}

// ValidateFormat checks that format only uses known directives.
func ValidateFormat(format string) error {
	_, err := Compile(format)
	return err
}

// Strftime renders t using strftime directives.
func Strftime(t time.Time, format string) (string, error) {
	p, err := Compile(format)
	if err != nil {
		return "", err
	}
	return p.FormatString(t), nil
}

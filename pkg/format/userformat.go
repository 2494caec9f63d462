package format

import (
	"fmt"
	"io"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`%\[([^\]]+)\]`)

// UserFormat renders each record through a user-supplied template
// string, streaming one rendered line per record. Placeholders take
// the form %[attribute.name]; any attribute absent from a given row
// renders as an empty string.
type UserFormat struct {
	w        io.Writer
	template string
}

func NewUserFormat(w io.Writer, opts Options) (*UserFormat, error) {
	if len(opts.Args) == 0 {
		return nil, fmt.Errorf("format: template argument required")
	}
	return &UserFormat{w: w, template: opts.Args[0]}, nil
}

func (f *UserFormat) ProcessRecord(row Row) error {
	out := placeholderRe.ReplaceAllStringFunc(f.template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := row.Get(name); ok {
			return v.Format()
		}
		return ""
	})
	_, err := fmt.Fprintln(f.w, out)
	return err
}

func (f *UserFormat) Flush() error { return nil }

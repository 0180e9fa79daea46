package outputs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultNameFormat is used when no format is configured.
const DefaultNameFormat = "%CCYY-%MM-%DD %hh-%mm-%ss"

// FS is the filesystem surface used for filename generation.
type FS interface {
	DirExists(path string) bool
	Exists(path string) bool
	Join(elem ...string) string
}

// OSFS is FS backed by the os package.
type OSFS struct{}

// DirExists implements FS.
func (OSFS) DirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Exists implements FS.
func (OSFS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Join implements FS.
func (OSFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// FilenameOptions configures GenerateFilename.
type FilenameOptions struct {
	Dir       string
	Format    string
	Prefix    string
	Suffix    string
	Extension string
	Overwrite bool
	// NoSpace replaces spaces in the formatted name with underscores.
	NoSpace bool
}

var nameTokens = []struct {
	token  string
	layout func(t time.Time) string
}{
	{"%CCYY", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"%YY", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
	{"%MM", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"%DD", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	{"%hh", func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
	{"%mm", func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
	{"%ss", func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
	{"%%", func(time.Time) string { return "%" }},
}

// FormatName expands the date/time tokens of format. Unknown % sequences
// are copied through.
func FormatName(format string, t time.Time) string {
	if format == "" {
		format = DefaultNameFormat
	}
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] != '%' {
			b.WriteByte(format[i])
			i++
			continue
		}
		matched := false
		for _, tok := range nameTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				b.WriteString(tok.layout(t))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte('%')
			i++
		}
	}
	return b.String()
}

// GenerateFilename builds an output path in opts.Dir. With Overwrite
// disabled and the candidate present, " (2)", " (3)", ... is inserted
// before the extension until a free name is found. The check is not atomic
// against other writers.
func GenerateFilename(fs FS, opts FilenameOptions, now time.Time) (string, error) {
	if opts.Dir == "" || !fs.DirExists(opts.Dir) {
		return "", NewError(ErrCodeBadPath, fmt.Sprintf("output directory %q", opts.Dir), ErrBadPath)
	}

	name := opts.Prefix + FormatName(opts.Format, now) + opts.Suffix
	if opts.NoSpace {
		name = strings.ReplaceAll(name, " ", "_")
	}
	ext := strings.TrimPrefix(opts.Extension, ".")

	candidate := fs.Join(opts.Dir, withExt(name, ext))
	if opts.Overwrite || !fs.Exists(candidate) {
		return candidate, nil
	}
	for n := 2; ; n++ {
		candidate = fs.Join(opts.Dir, withExt(fmt.Sprintf("%s (%d)", name, n), ext))
		if !fs.Exists(candidate) {
			return candidate, nil
		}
	}
}

func withExt(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}

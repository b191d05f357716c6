package hook

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xperimental/githook/internal/data"
)

// DateLayout is the layout of commit dates in comments, like "2021-03-04 15:04:05+01:00".
const DateLayout = "2006-01-02 15:04:05-07:00"

var (
	templateFuncMap = template.FuncMap{
		"date": func(t time.Time) string {
			return t.Format(DateLayout)
		},
		"ago": func(t time.Time) string {
			return humanize.Time(t)
		},
	}

	//go:embed _templates
	templateFs embed.FS
)

// commentData is passed to the comment template.
type commentData struct {
	UserName   string
	Repository data.Repository
	Ref        string
	Commit     data.Commit
	Time       time.Time
}

func loadTemplate(text string) (*template.Template, error) {
	if text == "" {
		subFs, err := fs.Sub(templateFs, "_templates")
		if err != nil {
			return nil, fmt.Errorf("can not load subdirectory: %w", err)
		}

		content, err := fs.ReadFile(subFs, "comment.txt")
		if err != nil {
			return nil, fmt.Errorf("can not load default template: %w", err)
		}
		text = strings.TrimSuffix(string(content), "\n")
	}

	tpl, err := template.New("comment").Funcs(templateFuncMap).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("can not parse comment template: %w", err)
	}

	return tpl, nil
}

func renderComment(tpl *template.Template, d commentData) (string, error) {
	b := &strings.Builder{}
	if err := tpl.Execute(b, d); err != nil {
		return "", fmt.Errorf("can not render comment for commit %s: %w", d.Commit.ID, err)
	}

	return b.String(), nil
}

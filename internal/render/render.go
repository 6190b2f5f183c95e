// Package render turns a notification kind and parameter bag into a
// localized subject, HTML body and plain-text fallback.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
)

//go:embed templates
var templateFS embed.FS

var supportedLanguages = []language.Tag{language.English, language.Arabic}

var rtlLanguages = map[string]bool{"ar": true}

var templateKinds = []domain.Kind{
	domain.KindClassReminder,
	domain.KindLowBalance,
	domain.KindTrialExpiring,
	domain.KindGeneric,
}

var (
	blockBreak = regexp.MustCompile(`(?i)</p>|<br\s*/?>|</li>|</h[1-6]>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type view struct {
	Lang   string
	Dir    string
	Params map[string]string
}

type templateKey struct {
	lang string
	kind domain.Kind
}

type Renderer struct {
	templates map[templateKey]*template.Template
	matcher   language.Matcher
	strip     *bluemonday.Policy
}

func New() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[templateKey]*template.Template, len(supportedLanguages)*len(templateKinds)),
		matcher:   language.NewMatcher(supportedLanguages),
		strip:     bluemonday.StrictPolicy(),
	}

	for _, tag := range supportedLanguages {
		lang := baseLanguage(tag)
		for _, kind := range templateKinds {
			tmpl, err := template.New(string(kind)).
				Option("missingkey=zero").
				ParseFS(templateFS, "templates/layout.gohtml", fmt.Sprintf("templates/%s/%s.gohtml", lang, kind))
			if err != nil {
				return nil, fmt.Errorf("parse %s/%s template: %w", lang, kind, err)
			}
			r.templates[templateKey{lang: lang, kind: kind}] = tmpl
		}
	}

	return r, nil
}

// Language returns the supported language closest to the requested one.
// Unknown or empty input resolves to English.
func (r *Renderer) Language(requested string) string {
	_, index, _ := r.matcher.Match(language.Make(strings.TrimSpace(requested)))
	return baseLanguage(supportedLanguages[index])
}

// Render executes the template for kind in the best matching language.
// Kinds without a template use the generic one.
func (r *Renderer) Render(kind domain.Kind, lang string, params map[string]string) (Rendered, error) {
	lang = r.Language(lang)

	tmpl, ok := r.templates[templateKey{lang: lang, kind: kind}]
	if !ok {
		tmpl = r.templates[templateKey{lang: lang, kind: domain.KindGeneric}]
	}

	data := view{Lang: lang, Dir: "ltr", Params: params}
	if rtlLanguages[lang] {
		data.Dir = "rtl"
	}
	if data.Params == nil {
		data.Params = map[string]string{}
	}

	var subject, page, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := tmpl.ExecuteTemplate(&page, "layout", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s layout: %w", kind, err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s body: %w", kind, err)
	}

	return Rendered{
		Subject: strings.TrimSpace(html.UnescapeString(subject.String())),
		HTML:    page.String(),
		Text:    r.PlainText(body.String()),
	}, nil
}

// PlainText strips markup from an HTML fragment and keeps paragraph breaks.
func (r *Renderer) PlainText(fragment string) string {
	withBreaks := blockBreak.ReplaceAllStringFunc(fragment, func(tag string) string { return tag + "\n" })
	text := html.UnescapeString(r.strip.Sanitize(withBreaks))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func baseLanguage(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

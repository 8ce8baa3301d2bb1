// Package preprocess turns raw policy files into plain text ready for chunking.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	fixes      = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"·", ".", "•", "-",
	)
)

// CleanBasic drops control characters, fixes common ligatures and collapses blank runs.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	b := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(text, "�"))

	b = fixes.Replace(b)
	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")
	return strings.TrimSpace(b)
}

// HTMLToText keeps headings, paragraphs, list items and tables of an HTML policy page.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li,table").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3", "h4":
			out = append(out, "### "+text)
		case "p":
			out = append(out, text)
		case "li":
			out = append(out, "- "+text)
		case "table":
			out = append(out, parseTable(s))
		}
	})
	return CleanBasic(strings.Join(out, "\n\n")), nil
}

func parseTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

package preprocess

import (
	"strings"
	"testing"
)

func TestCleanBasic(t *testing.T) {
	in := "Per\tdiem   rates\x07 apply —\n\n\n\nsee ﬁnance."
	want := "Per diem rates apply -\n\nsee finance."
	if got := CleanBasic(in); got != want {
		t.Fatalf("CleanBasic() = %q, want %q", got, want)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><body>
<h1>Travel Policy</h1>
<p>Economy class is the default.</p>
<ul><li>Business class needs VP approval</li></ul>
<table><tr><th>City</th><th>Rate</th></tr><tr><td>Paris</td><td>220</td></tr></table>
<script>track()</script>
</body></html>`

	got, err := HTMLToText(html)
	if err != nil {
		t.Fatalf("HTMLToText: %v", err)
	}
	for _, want := range []string{
		"# Travel Policy",
		"Economy class is the default.",
		"- Business class needs VP approval",
		"| City | Rate |\n| Paris | 220 |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "track()") {
		t.Error("script content leaked into text")
	}
}

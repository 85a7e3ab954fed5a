package html

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func TestSupportedMIMETypes(t *testing.T) {
	assert.Equal(t, []string{"text/html", "application/xhtml+xml"}, New().SupportedMIMETypes())
	assert.Equal(t, 50, New().Priority())
}

func TestParse_Text(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"paragraph", "<p>Hello World</p>", "Hello World"},
		{"nested inline", "<div><p><strong>Bold</strong> text</p></div>", "Bold text"},
		{"script removed", "<p>Before</p><script>alert('evil');</script><p>After</p>", "Before\nAfter"},
		{"style removed", "<style>.foo { color: red; }</style><p>Content</p>", "Content"},
		{"noscript removed", "<p>Content</p><noscript>No JS fallback</noscript>", "Content"},
		{"head removed", "<head><meta charset='utf-8'><title>Title</title></head><body>Content</body>", "Content"},
		{"br", "Line 1<br>Line 2<br/>Line 3", "Line 1\nLine 2\nLine 3"},
		{"blocks", "<div>Block 1</div><div>Block 2</div>", "Block 1\nBlock 2"},
		{"entities", "<p>&lt;tag&gt; &amp; &quot;quotes&quot;</p>", "<tag> & \"quotes\""},
		{"comments", "<p>Before</p><!-- comment --><p>After</p>", "Before\nAfter"},
		{"list", "<ul><li>Item 1</li><li>Item 2</li></ul>", "Item 1\nItem 2"},
		{"link text kept", `<a href="https://example.com">Click here</a>`, "Click here"},
		{"image dropped", `<p>See <img src="image.png" alt="Image"> here</p>`, "See here"},
		{"table cells", "<table><tr><th>Item</th><th>Price</th></tr><tr><td>Desk</td><td>10</td></tr></table>", "Item | Price\nDesk | 10"},
		{"svg removed", `<p>Before</p><svg width="100"><circle cx="50"/></svg><p>After</p>`, "Before\nAfter"},
		{"whitespace", "<p>  spread \n\t over   lines </p>", "spread over lines"},
		{"wrapped source lines", "<p>The supplier shall\n  provide support</p><p>Next</p>", "The supplier shall provide support\nNext"},
		{"inline across lines", "<p><b>Deadline:</b>\n<i>1 May</i></p>", "Deadline: 1 May"},
		{"pre keeps lines", "<pre>line one\nline two</pre>", "line one\nline two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Text)
		})
	}
}

func TestParse_Metadata(t *testing.T) {
	input := `<html><head>
<title> Managed IT &amp; Services </title>
<meta name="description" content=" Council tender ">
</head><body>
<h1>Invitation to Tender</h1><p>Intro</p>
<h2>Scope <em>of</em> Work</h2><h4>Not listed</h4>
<script><h2>hidden</h2></script>
</body></html>`

	page, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "Managed IT & Services", page.Title)
	assert.Equal(t, "Council tender", page.Description)
	assert.Equal(t, []string{"Invitation to Tender", "Scope of Work"}, page.Headings)
	assert.Equal(t, "Invitation to Tender\nIntro\nScope of Work\nNot listed", page.Text)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		content   string
		wantTitle string
	}{
		{"title element", "rfp.html", "<title>Tender</title><h1>Heading</h1>", "Tender"},
		{"first heading", "rfp.html", "<h1>Heading</h1><p>x</p>", "Heading"},
		{"filename", "council_rfp.html", "<p>Body only</p>", "council rfp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Extract(context.Background(), domain.Upload{
				Filename: tt.filename,
				MIMEType: "text/html",
				Content:  []byte(tt.content),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, "html", got.Metadata["format"])
		})
	}
}

func TestExtract_Empty(t *testing.T) {
	_, err := New().Extract(context.Background(), domain.Upload{Filename: "empty.html"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	emojiext "github.com/yuin/goldmark-emoji"
	emojiast "github.com/yuin/goldmark-emoji/ast"
	"github.com/yuin/goldmark-emoji/definition"
)

// Markdown renders post and comment text. Newlines become hard breaks, bare
// URLs get linked, :shortcode: emojis become inline images and MeWe mention
// markup becomes profile links. ATX headings are disabled: upstream text is
// full of #hashtags that would otherwise blow up into <h1>.
type Markdown struct {
	md     goldmark.Markdown
	emojis EmojiDict
}

// NewMarkdown builds the renderer around an emoji dictionary. Shortcodes
// missing from the dictionary are left as literal text.
func NewMarkdown(emojis EmojiDict) *Markdown {
	defs := make([]definition.Emoji, 0, len(emojis))
	for code := range emojis {
		defs = append(defs, definition.NewEmoji(code, nil, code))
	}

	md := goldmark.New(
		goldmark.WithParser(newTextParser()),
		goldmark.WithExtensions(
			extension.Linkify,
			emojiext.New(
				emojiext.WithEmojis(definition.NewEmojis(defs...)),
				emojiext.WithRenderingMethod(emojiext.Func),
				emojiext.WithRendererFunc(emojiRenderer(emojis)),
			),
			&mentionExtension{},
		),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	return &Markdown{md: md, emojis: emojis}
}

// Render converts markdown text to HTML. Conversion failures fall back to the
// escaped source text rather than dropping the post.
func (m *Markdown) Render(src string) template.HTML {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// newTextParser is the default parser with the ATX heading parser left out.
// Setext headings stay enabled; only the '#' form collides with hashtags.
func newTextParser() parser.Parser {
	return parser.NewParser(
		parser.WithBlockParsers(
			util.Prioritized(parser.NewSetextHeadingParser(), 100),
			util.Prioritized(parser.NewThematicBreakParser(), 200),
			util.Prioritized(parser.NewListParser(), 300),
			util.Prioritized(parser.NewListItemParser(), 400),
			util.Prioritized(parser.NewCodeBlockParser(), 500),
			util.Prioritized(parser.NewFencedCodeBlockParser(), 700),
			util.Prioritized(parser.NewBlockquoteParser(), 800),
			util.Prioritized(parser.NewHTMLBlockParser(), 900),
			util.Prioritized(parser.NewParagraphParser(), 1000),
		),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	)
}

func emojiRenderer(emojis EmojiDict) emojiext.RendererFunc {
	return func(w util.BufWriter, source []byte, n *emojiast.Emoji, config *emojiext.RendererConfig) {
		code := string(n.ShortName)
		src, ok := emojis[code]
		if !ok {
			src = "#"
		}
		fmt.Fprintf(w, `<img alt=":%s:" class="mewe-emoji" src="%s">`,
			util.EscapeHTML([]byte(code)), util.EscapeHTML([]byte(src)))
	}
}

// mentionPattern matches MeWe mention markup: @{{u_<hexid>}Display Name}.
var mentionPattern = regexp.MustCompile(`^@\{\{u_([0-9a-f]+)\}(.*?)\}`)

// Mention is an inline node carrying a resolved user mention.
type Mention struct {
	ast.BaseInline
	UserID string
}

var kindMention = ast.NewNodeKind("Mention")

func (n *Mention) Kind() ast.NodeKind { return kindMention }

func (n *Mention) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"UserID": n.UserID}, nil)
}

type mentionParser struct{}

func (p *mentionParser) Trigger() []byte { return []byte{'@'} }

func (p *mentionParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, segment := block.PeekLine()
	m := mentionPattern.FindSubmatchIndex(line)
	if m == nil {
		return nil
	}

	node := &Mention{UserID: string(line[m[2]:m[3]])}
	node.AppendChild(node, ast.NewTextSegment(text.NewSegment(segment.Start+m[4], segment.Start+m[5])))
	block.Advance(m[1])
	return node
}

type mentionRenderer struct{}

func (r *mentionRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindMention, r.render)
}

func (r *mentionRenderer) render(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		m := n.(*Mention)
		fmt.Fprintf(w, `<a href="/userfeed/%s" class="user_mention">`, util.EscapeHTML([]byte(m.UserID)))
	} else {
		w.WriteString("</a>")
	}
	return ast.WalkContinue, nil
}

type mentionExtension struct{}

func (e *mentionExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(util.Prioritized(&mentionParser{}, 175)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(&mentionRenderer{}, 500)))
}

package journal

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"worklogd/internal/session"
)

var (
	titleRe   = regexp.MustCompile(`^Work Log — (\d{4}-\d{2}-\d{2})$`)
	stampRe   = regexp.MustCompile(`^\*(\d{2}:\d{2}:\d{2})\*$`)
	startupRe = regexp.MustCompile(`^\*Logger started at (\d{2}:\d{2}:\d{2})\*$`)
	idRe      = regexp.MustCompile(`<!-- section: (\S+) -->`)
)

// Document is a parsed daily log.
type Document struct {
	Date     string
	Starts   []string
	Sections []ParsedSection
}

// ParsedSection is one section block read back from a log. Event times are
// not stored in the log and stay zero.
type ParsedSection struct {
	Heading string
	ID      string
	Time    string
	Events  []session.Event
}

// Parse reads a daily log. Text typed into the log that happens to look like
// Markdown structure is read back on a best-effort basis.
func Parse(src []byte) (*Document, error) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))
	if root == nil {
		return nil, errors.New("journal: parse failed")
	}

	doc := &Document{}
	var cur *ParsedSection
	var pendingLabel session.Kind

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := lineText(node, src)
			if node.Level == 1 && cur == nil {
				if m := titleRe.FindStringSubmatch(title); m != nil {
					doc.Date = m[1]
				}
				continue
			}
			if node.Level == 2 {
				doc.Sections = append(doc.Sections, ParsedSection{Heading: title})
				cur = &doc.Sections[len(doc.Sections)-1]
				pendingLabel = ""
				continue
			}
			cur = appendText(doc, cur, "# "+title)

		case *ast.ThematicBreak:
			cur = nil
			pendingLabel = ""

		case *ast.HTMLBlock:
			raw := lineText(node, src)
			if node.HasClosure() {
				raw += string(node.ClosureLine.Value(src))
			}
			if m := idRe.FindStringSubmatch(raw); m != nil && cur != nil && cur.ID == "" {
				cur.ID = m[1]
				continue
			}
			cur = appendText(doc, cur, strings.TrimSpace(raw))

		case *ast.FencedCodeBlock:
			body := codeText(node, src)
			if cur != nil && pendingLabel != "" {
				cur.Events = append(cur.Events, session.Event{Kind: pendingLabel, Text: body})
				pendingLabel = ""
				continue
			}
			cur = appendText(doc, cur, body)

		case *ast.Blockquote:
			if cur == nil {
				// The generator note in the document header.
				continue
			}
			inner := strings.TrimSpace(nodeText(node, src))
			if inner == "[CLIPBOARD]:" {
				pendingLabel = session.KindClipboard
				continue
			}
			cur = appendText(doc, cur, "> "+inner)

		case *ast.Paragraph:
			line := lineText(node, src)
			switch {
			case startupRe.MatchString(line):
				doc.Starts = append(doc.Starts, startupRe.FindStringSubmatch(line)[1])
			case cur != nil && cur.Time == "" && len(cur.Events) == 0 && stampRe.MatchString(line):
				cur.Time = stampRe.FindStringSubmatch(line)[1]
			case cur != nil && line == ScreenLabel:
				pendingLabel = session.KindScreen
			case cur != nil && strings.HasPrefix(line, ClickLabel):
				cur.Events = append(cur.Events, session.Event{
					Kind: session.KindClick,
					Text: strings.TrimSpace(strings.TrimPrefix(line, ClickLabel)),
				})
			default:
				cur = appendText(doc, cur, line)
			}

		default:
			cur = appendText(doc, cur, strings.TrimSpace(nodeText(node, src)))
		}
	}
	return doc, nil
}

// appendText records free text as keystrokes in the current section. Text
// outside any section opens one under the fallback heading.
func appendText(doc *Document, cur *ParsedSection, s string) *ParsedSection {
	if s == "" {
		return cur
	}
	if cur == nil {
		doc.Sections = append(doc.Sections, ParsedSection{Heading: session.FallbackHeading})
		cur = &doc.Sections[len(doc.Sections)-1]
	}
	cur.Events = append(cur.Events, session.Event{Kind: session.KindKeystrokes, Text: s})
	return cur
}

// lineText joins a block's source lines with newlines.
func lineText(n ast.Node, src []byte) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(src)), "\r\n"))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func codeText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// nodeText collects the source lines of n and its descendants.
func nodeText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return lineText(n, src)
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := nodeText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// ParseFile parses the log at path.
func ParseFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// SectionIDs returns the IDs of the sections already in the log at path. A
// missing file has none.
func SectionIDs(path string) (map[string]bool, error) {
	doc, err := ParseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(doc.Sections))
	for _, s := range doc.Sections {
		if s.ID != "" {
			ids[s.ID] = true
		}
	}
	return ids, nil
}

// AppCount is the number of sections attributed to one application.
type AppCount struct {
	App      string
	Sections int
}

// Summary aggregates a parsed log.
type Summary struct {
	Date       string
	Starts     int
	Sections   int
	Secure     int
	Events     map[session.Kind]int
	Keystrokes int
	First      string
	Last       string
	Apps       []AppCount
}

// Summarize computes per-kind counts and the most frequent applications.
func Summarize(doc *Document) Summary {
	s := Summary{
		Date:     doc.Date,
		Starts:   len(doc.Starts),
		Sections: len(doc.Sections),
		Events:   make(map[session.Kind]int),
	}
	apps := make(map[string]int)
	for _, sec := range doc.Sections {
		if sec.Time != "" {
			if s.First == "" || sec.Time < s.First {
				s.First = sec.Time
			}
			if sec.Time > s.Last {
				s.Last = sec.Time
			}
		}
		heading := sec.Heading
		if strings.HasPrefix(heading, session.SecureHeadingPrefix) {
			s.Secure++
			heading = strings.TrimPrefix(heading, session.SecureHeadingPrefix)
		}
		app, _, _ := strings.Cut(heading, " — ")
		apps[app]++
		for _, ev := range sec.Events {
			s.Events[ev.Kind]++
			if ev.Kind == session.KindKeystrokes {
				s.Keystrokes += len([]rune(ev.Text))
			}
		}
	}
	for app, n := range apps {
		s.Apps = append(s.Apps, AppCount{App: app, Sections: n})
	}
	sort.Slice(s.Apps, func(i, j int) bool {
		if s.Apps[i].Sections != s.Apps[j].Sections {
			return s.Apps[i].Sections > s.Apps[j].Sections
		}
		return s.Apps[i].App < s.Apps[j].App
	})
	return s
}

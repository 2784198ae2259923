package browser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"scholarmind/portal/internal/library"
)

// render prints the page for target. Unknown libraries and papers render an
// inline message rather than failing the navigation.
func (b *Browser) render(tab *Tab, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse %q: %w", target, err)
	}
	p := u.Path

	var sb strings.Builder
	fmt.Fprintf(&sb, "[tab %d] %s\n", tab.ID, target)
	switch {
	case p == "/" || p == "":
		sb.WriteString("  ScholarMind\n")
	case p == b.rules.LoginPath():
		sb.WriteString("  Log in to continue\n")
		if from := u.Query().Get("from"); from != "" {
			fmt.Fprintf(&sb, "  then back to %s\n", from)
		}
	case p == "/account":
		if user, ok := tab.store.CurrentSession(); ok {
			fmt.Fprintf(&sb, "  %s <%s>\n", user.Username, user.Email)
		} else {
			sb.WriteString("  not logged in\n")
		}
	case p == "/libraries":
		for _, f := range b.catalogue.Folders() {
			fmt.Fprintf(&sb, "  %s  %s (%d papers)\n", f.ID, f.Name, f.PaperCount)
		}
	case strings.HasPrefix(p, "/libraries/"):
		id := strings.TrimPrefix(p, "/libraries/")
		f, err := b.catalogue.Folder(id)
		if errors.Is(err, library.ErrNotFound) {
			sb.WriteString("  Library not found\n")
			break
		}
		fmt.Fprintf(&sb, "  %s\n", f.Name)
		for _, paper := range b.catalogue.PapersIn(id) {
			fmt.Fprintf(&sb, "  %s  %s (%d)\n", paper.ID, paper.Title, paper.Year)
		}
	case strings.HasPrefix(p, "/papers/"):
		paper, err := b.catalogue.Paper(strings.TrimPrefix(p, "/papers/"))
		if errors.Is(err, library.ErrNotFound) {
			sb.WriteString("  Paper not found\n")
			break
		}
		fmt.Fprintf(&sb, "  %s\n  %s, %d\n", paper.Title, strings.Join(paper.Authors, ", "), paper.Year)
	default:
		sb.WriteString("  Page not found\n")
	}

	_, err = fmt.Fprint(b.out, sb.String())
	return err
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"cineverse/discovery/internal/domain"
)

func (m *Model) View() string {
	var body string
	switch m.view {
	case SuggestView:
		body = m.renderSuggest()
	case ResultsView:
		body = m.renderResults()
	case FeedView:
		body = m.renderFeed()
	case DetailsView:
		body = m.renderDetails()
	}

	var footer []string
	if m.loading {
		footer = append(footer, styles.muted.Render("loading..."))
	}
	if m.err != nil {
		footer = append(footer, styles.err.Render("Error: "+m.err.Error()))
	}
	if m.status != "" {
		footer = append(footer, m.status)
	}
	if len(footer) == 0 {
		return body
	}
	return body + "\n" + strings.Join(footer, "\n")
}

func (m *Model) renderSuggest() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("CineVerse"))
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')

	state := m.suggestion
	switch {
	case state.InFlight:
		b.WriteString(styles.muted.Render("  searching..."))
		b.WriteByte('\n')
	case state.Open:
		b.WriteString(styles.box.Render(strings.TrimRight(m.renderList(state.Suggestions, state.Highlighted), "\n")))
		b.WriteByte('\n')
	}

	help := m.help.ShortHelpView([]key.Binding{
		m.keys.down, m.keys.up,
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select/search")),
		key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "watchlist")),
		m.keys.tab,
	})
	b.WriteString("\n" + help)
	return b.String()
}

func (m *Model) renderResults() string {
	title := styles.title.Render(fmt.Sprintf("Results for %q (page %d of %d)", m.resultsQuery, max(m.results.Page, 1), max(m.results.TotalPages, 1)))
	list := m.renderList(m.results.Results, m.resultsCursor)
	if len(m.results.Results) == 0 {
		list = styles.muted.Render("No results") + "\n"
	}
	help := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.enter, m.keys.watchlist, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, list, help)
}

func (m *Model) renderFeed() string {
	snapshot := m.feedSnapshot
	if m.feed == nil {
		return styles.muted.Render("No feed configured. Press tab to go back.")
	}

	label := "All"
	if genre, ok := domain.LookupGenre(snapshot.Genre); ok {
		label = genre.Label
	}
	title := styles.title.Render(fmt.Sprintf("%s · %s · by %s", strings.ToUpper(m.feed.Name()), label, snapshot.SortBy))

	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	switch {
	case m.refreshing || snapshot.Loading:
		b.WriteString(styles.muted.Render("Loading movies..."))
		b.WriteByte('\n')
	case snapshot.AllFailed:
		b.WriteString(styles.err.Render("Could not load any category. Press r to retry."))
		b.WriteByte('\n')
	case len(snapshot.Items) == 0:
		b.WriteString(styles.muted.Render("No movies match this filter."))
		b.WriteByte('\n')
	default:
		if snapshot.Hero != nil {
			b.WriteString(styles.ok.Render("Featured: " + movieLine(*snapshot.Hero)))
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderList(window(snapshot.Items, m.feedCursor, 15)))
	}

	var failed []string
	for _, status := range snapshot.Statuses {
		if !status.OK && !snapshot.Loading {
			failed = append(failed, status.Key)
		}
	}
	if len(failed) > 0 && !snapshot.AllFailed {
		b.WriteString(styles.warn.Render("unavailable: " + strings.Join(failed, ", ")))
		b.WriteByte('\n')
	}

	help := m.help.ShortHelpView([]key.Binding{m.keys.genre, m.keys.sort, m.keys.refresh, m.keys.enter, m.keys.watchlist, m.keys.tab, m.keys.quit})
	b.WriteString("\n" + help)
	return b.String()
}

// window returns at most size items around cursor and the cursor's index in them.
func window(items []domain.MovieSummary, cursor, size int) ([]domain.MovieSummary, int) {
	if len(items) <= size {
		return items, cursor
	}
	start := min(max(cursor-size/2, 0), len(items)-size)
	return items[start : start+size], cursor - start
}

func (m *Model) renderDetails() string {
	if m.details == nil {
		return styles.muted.Render("Nothing selected")
	}
	movie := m.details.Movie

	var b strings.Builder
	b.WriteString(styles.title.Render(m.marker(movie.MovieSummary) + movieLine(movie.MovieSummary)))
	b.WriteByte('\n')
	if movie.Tagline != "" {
		b.WriteString(styles.muted.Render(movie.Tagline))
		b.WriteByte('\n')
	}
	if movie.Runtime > 0 {
		b.WriteString(fmt.Sprintf("%d min\n", movie.Runtime))
	}
	if movie.Overview != "" {
		b.WriteString("\n" + movie.Overview + "\n")
	}

	if len(m.details.Reviews) > 0 {
		b.WriteString("\n" + styles.ok.Render("Reviews") + "\n")
		for _, review := range m.details.Reviews {
			b.WriteString(fmt.Sprintf("  %s: %s\n", review.Author, truncateText(review.Content, 160)))
		}
	}
	if len(movie.Similar) > 0 {
		titles := make([]string, 0, len(movie.Similar))
		for _, similar := range movie.Similar {
			titles = append(titles, similar.DisplayTitle())
		}
		b.WriteString("\n" + styles.ok.Render("Similar") + "\n  " + strings.Join(titles, ", ") + "\n")
	}

	help := m.help.ShortHelpView([]key.Binding{m.keys.watchlist, m.keys.back, m.keys.quit})
	b.WriteString("\n" + help)
	return b.String()
}

func truncateText(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

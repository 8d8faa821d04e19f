package stats

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the report as a set of terminal tables.
func Render(w io.Writer, rep Report) {
	overview := newTable(w, "Overview")
	overview.AppendHeader(table.Row{"Metric", "Value"})
	overview.AppendRows([]table.Row{
		{"Freelancers", rep.FreelancersCount},
		{"Countries", rep.CountriesCount},
		{"Services", rep.ServicesCount},
		{"Reviews", rep.ReviewsCount},
		{"Average rating", fmt.Sprintf("%.2f", rep.AvgRating)},
	})
	overview.Render()

	if len(rep.TopCountries) > 0 {
		t := newTable(w, "Top countries")
		t.AppendHeader(table.Row{"#", "Country", "Code", "Freelancers"})
		for i, c := range rep.TopCountries {
			t.AppendRow(table.Row{i + 1, c.Name, c.Code, c.Count})
		}
		t.Render()
	}

	if len(rep.TopSkills) > 0 {
		t := newTable(w, "Top skills")
		t.AppendHeader(table.Row{"#", "Main skill", "Freelancers"})
		for i, s := range rep.TopSkills {
			t.AppendRow(table.Row{i + 1, s.Name, s.Count})
		}
		t.Render()
	}

	rates := newTable(w, "Hourly rate")
	rates.AppendHeader(table.Row{"Range", "Freelancers"})
	for _, r := range rep.HourlyRateDistribution {
		rates.AppendRow(table.Row{r.Range, r.Count})
	}
	rates.Render()

	ratings := newTable(w, "Rating")
	ratings.AppendHeader(table.Row{"Stars", "Freelancers"})
	for _, r := range rep.RatingDistribution {
		ratings.AppendRow(table.Row{r.Rating, r.Count})
	}
	ratings.Render()

	sources := newTable(w, "Sources")
	sources.AppendHeader(table.Row{"Source", "Freelancers"})
	for _, s := range rep.SourceDistribution {
		sources.AppendRow(table.Row{s.Source, s.Count})
	}
	sources.AppendFooter(table.Row{"Total", rep.FreelancersCount})
	sources.Render()

	if len(rep.SignupByMonth) > 0 {
		t := newTable(w, "Created by month")
		t.AppendHeader(table.Row{"Month", "Freelancers"})
		for _, m := range rep.SignupByMonth {
			t.AppendRow(table.Row{m.Month, m.Count})
		}
		t.Render()
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

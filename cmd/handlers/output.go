package handlers

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"umapembed/internal/core"
	"umapembed/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(22)
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)

	statusStyles = map[core.RunStatus]lipgloss.Style{
		core.RunCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		core.RunFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		core.RunRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

// printSummary reports a finished run on w.
func printSummary(w io.Writer, res *pipeline.Result) {
	run := res.Run

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("✓ Embedded %q", run.Tag)))
	b.WriteString("\n")

	line := func(k, v string) {
		b.WriteString(keyStyle.Render(k))
		b.WriteString(v)
		b.WriteString("\n")
	}
	line("observations", strconv.Itoa(run.Observations))
	line("features", strconv.Itoa(run.Features))
	if res.Embedding != nil {
		u := res.Embedding.UMAP
		line("pca components", strconv.Itoa(res.Embedding.PCA.NComponents()))
		line("umap neighbours", strconv.Itoa(u.NNeighbors))
		line("umap init", u.Init)
		line("umap epochs", strconv.Itoa(u.NEpochs))
	}
	if res.Clustering != nil {
		line("clusters", strconv.Itoa(run.Clusters))
		line("noise", strconv.Itoa(run.Noise))
		if run.Clusters >= 2 {
			line("silhouette", fmt.Sprintf("%.3f (%s)", res.Clustering.Silhouette, res.Clustering.Quality()))
		}
	}
	if run.ID != "" {
		line("run id", run.ID)
	}
	line("duration", run.Duration().Round(time.Millisecond).String())

	b.WriteString("\n")
	names := make([]string, 0, len(run.Artifacts))
	for name := range run.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		line(name, run.Artifacts[name])
	}

	fmt.Fprint(w, b.String())
}

// renderRunsTable lays runs out as a bordered table.
func renderRunsTable(runs []core.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		duration := "-"
		if d := r.Duration(); d > 0 {
			duration = d.Round(time.Second).String()
		}
		clusters := "-"
		if r.Status == core.RunCompleted && r.Clusters > 0 {
			clusters = fmt.Sprintf("%d (+%d noise)", r.Clusters, r.Noise)
		}
		rows = append(rows, []string{
			id,
			r.Tag,
			string(r.Status),
			strconv.Itoa(r.Observations),
			clusters,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			duration,
			r.Error,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TAG", "STATUS", "OBS", "CLUSTERS", "STARTED", "TOOK", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if col == 2 {
				status := core.RunStatus(rows[row][col])
				if s, ok := statusStyles[status]; ok {
					return s.Padding(0, 1)
				}
			}
			return cellStyle
		})
	return t.Render()
}

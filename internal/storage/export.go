package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders runs as a markdown document, one section per run.
func ExportMarkdown(runs []Run) string {
	var b strings.Builder

	b.WriteString("# Runs\n\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("## %s\n\n", r.ID))
		if r.SessionID != "" {
			b.WriteString(fmt.Sprintf("- **Session:** %s\n", r.SessionID))
		}
		b.WriteString(fmt.Sprintf("- **Language:** %s\n", r.Language))
		b.WriteString(fmt.Sprintf("- **Created:** %s\n", r.CreatedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("- **Duration:** %dms\n", r.DurationMS))
		if r.Failed {
			b.WriteString("- **Status:** failed\n")
		} else {
			b.WriteString("- **Status:** ok\n")
		}
		b.WriteString(fmt.Sprintf("\n```%s\n%s\n```\n\n", fence(r.Language), r.Source))
		b.WriteString(fmt.Sprintf("<details>\n<summary>Output</summary>\n\n```\n%s\n```\n</details>\n\n", r.Output))
	}

	return b.String()
}

// ExportJSON renders runs as formatted JSON.
func ExportJSON(runs []Run) ([]byte, error) {
	if runs == nil {
		runs = []Run{}
	}
	export := struct {
		Runs []Run `json:"runs"`
	}{
		Runs: runs,
	}
	return json.MarshalIndent(export, "", "  ")
}

func fence(language string) string {
	switch language {
	case "javascript":
		return "js"
	case "python":
		return "python"
	}
	return ""
}

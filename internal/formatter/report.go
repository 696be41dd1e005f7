// Package formatter renders health check reports.
package formatter

import (
	"github.com/tordrt/wshealth/internal/health"
)

// Report is the result of a health check for one workspace.
type Report struct {
	WorkspaceID string
	Mode        health.Mode
	Issues      []health.Issue
}

// Healthy reports whether the check found nothing.
func (r *Report) Healthy() bool {
	return len(r.Issues) == 0
}

// tableGroup holds the issues for one table, in detection order.
type tableGroup struct {
	Table  string
	Issues []health.Issue
}

// groupByTable keeps the order in which tables first appear.
func groupByTable(issues []health.Issue) []tableGroup {
	var groups []tableGroup
	index := make(map[string]int)
	for _, issue := range issues {
		i, ok := index[issue.TableName]
		if !ok {
			i = len(groups)
			index[issue.TableName] = i
			groups = append(groups, tableGroup{Table: issue.TableName})
		}
		groups[i].Issues = append(groups[i].Issues, issue)
	}
	return groups
}

// countByCategory returns object, field and relation counts.
func countByCategory(issues []health.Issue) map[health.Category]int {
	counts := make(map[health.Category]int)
	for _, issue := range issues {
		counts[issue.Category]++
	}
	return counts
}

func observed(issue health.Issue) string {
	if issue.Column == nil {
		return ""
	}
	switch issue.Kind {
	case health.ColumnTypeMismatch:
		return issue.Column.Type
	case health.ColumnNullabilityMismatch:
		if issue.Column.Nullable {
			return "nullable"
		}
		return "not null"
	case health.ColumnDefaultMismatch:
		if issue.Column.DefaultValue == nil {
			return "none"
		}
		return *issue.Column.DefaultValue
	}
	return ""
}

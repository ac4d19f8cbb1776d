package api

import (
	"net/http"
	"strings"

	"github.com/jhbizops/builder.contractors-sub000/internal/models"
)

// filterFromQuery parses listing filters from query parameters. The
// multi-valued params (status, region, country, trade) accept
// comma-separated values; owner and assignee are single ids.
func filterFromQuery(r *http.Request) models.JobFilter {
	q := r.URL.Query()
	return models.JobFilter{
		OwnerID:    strings.TrimSpace(q.Get("owner")),
		AssigneeID: strings.TrimSpace(q.Get("assignee")),
		Statuses:   splitList(q.Get("status")),
		Regions:    splitList(q.Get("region")),
		Countries:  splitList(q.Get("country")),
		Trades:     splitList(q.Get("trade")),
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs schedules and runs the daily retrieval of every stored query.
//
// The registry is built once from the stored queries: one job per query,
// placed on the clock at a fixed spacing from a start hour so the search
// API sees the jobs one after another.
package jobs

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Default schedule settings.
const (
	DefaultStartHour      = 10
	DefaultSpacingMinutes = 2
	DefaultParallelism    = 4
)

// Job retrieves one query daily at Hour:Minute.
type Job struct {
	Name         string
	QueryID      string
	QueryLiteral string
	Hour         int
	Minute       int
}

// Cron returns the job's daily cron expression.
func (j Job) Cron() string {
	return fmt.Sprintf("%d %d * * *", j.Minute, j.Hour)
}

var nameReplacer = strings.NewReplacer(
	":", "_", `"`, "_", " ", "_", "(", "_", ")", "_", ".", "_", ",", "_",
)

// JobName derives a job name from a query literal.
func JobName(queryLiteral string) string {
	return "retrieval__" + nameReplacer.Replace(queryLiteral)
}

// BuildRegistry creates one job per query, sorted by name, the i-th
// starting i*SpacingMinutes after StartHour. Two queries mapping to the
// same name, or a schedule running past 23h, are configuration errors.
func BuildRegistry(queries []types.Query, sched types.ScheduleConfig) ([]Job, error) {
	if sched.StartHour < 0 || sched.StartHour > 23 {
		return nil, apperr.New(apperr.KindConfiguration, "start hour %d is outside 0-23", sched.StartHour)
	}
	if sched.SpacingMinutes < 0 {
		return nil, apperr.New(apperr.KindConfiguration, "job spacing %d is negative", sched.SpacingMinutes)
	}

	jobs := make([]Job, 0, len(queries))
	byName := map[string]string{}
	for _, q := range queries {
		name := JobName(q.QueryLiteral)
		if other, ok := byName[name]; ok {
			return nil, apperr.New(apperr.KindConfiguration,
				"queries %q and %q share job name %s", other, q.QueryLiteral, name)
		}
		byName[name] = q.QueryLiteral
		jobs = append(jobs, Job{Name: name, QueryID: q.ID, QueryLiteral: q.QueryLiteral})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	for i := range jobs {
		offset := i * sched.SpacingMinutes
		hour := sched.StartHour + offset/60
		if hour > 23 {
			return nil, apperr.New(apperr.KindConfiguration,
				"%d jobs spaced %d minutes from %d:00 run past midnight", len(jobs), sched.SpacingMinutes, sched.StartHour)
		}
		jobs[i].Hour = hour
		jobs[i].Minute = offset % 60
	}
	return jobs, nil
}

// Find returns the job for queryLiteral.
func Find(jobs []Job, queryLiteral string) (Job, bool) {
	for _, j := range jobs {
		if j.QueryLiteral == queryLiteral {
			return j, true
		}
	}
	return Job{}, false
}

// WriteCrontab renders jobs as crontab entries invoking command with
// "retrieve <literal>". Times are in timezone.
func WriteCrontab(w io.Writer, jobs []Job, command, timezone string) error {
	if timezone != "" {
		if _, err := fmt.Fprintf(w, "CRON_TZ=%s\n", timezone); err != nil {
			return err
		}
	}
	for _, j := range jobs {
		if _, err := fmt.Fprintf(w, "# %s\n%s %s retrieve %s\n", j.Name, j.Cron(), command, shellQuote(j.QueryLiteral)); err != nil {
			return err
		}
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

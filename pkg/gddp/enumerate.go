package gddp

import (
	"sort"
)

// Resolver maps a (model, scenario) pair to the run that identifies its files.
type Resolver interface {
	Resolve(model, scenario string) (Member, error)
}

// Plan describes the cartesian product of work for one run.
type Plan struct {
	Models    []string
	Variables []string
	Scenarios map[string]YearRange
	BBox      BBox
	Extension string
}

// Size returns the number of jobs the plan would produce if every pair
// resolved. Repeated ids count once.
func (p Plan) Size() int {
	years := 0
	for _, r := range p.Scenarios {
		years += r.Len()
	}
	return len(unique(p.Models)) * len(unique(p.Variables)) * years
}

// unique returns ids without repeats, keeping first occurrences in order.
func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Enumerate expands the plan into one Pending job per (model, variable,
// scenario, year). Repeated model or variable ids are enumerated once, so no
// two jobs share a key. Each (model, scenario) pair is resolved once; a pair
// that does not resolve contributes no jobs and one warning, and enumeration
// continues with the remaining pairs.
func Enumerate(r Resolver, p Plan) ([]Job, []error) {
	scenarios := make([]string, 0, len(p.Scenarios))
	for s := range p.Scenarios {
		scenarios = append(scenarios, s)
	}
	sort.Strings(scenarios)

	var (
		models    = unique(p.Models)
		variables = unique(p.Variables)
		jobs      = make([]Job, 0, p.Size())
		warnings  []error
	)

	for _, model := range models {
		for _, scenario := range scenarios {
			member, err := r.Resolve(model, scenario)
			if err != nil {
				warnings = append(warnings, err)
				continue
			}
			years := p.Scenarios[scenario]
			for _, variable := range variables {
				for year := years.Start; year <= years.End; year++ {
					jobs = append(jobs, Job{
						Model:     model,
						Scenario:  scenario,
						Ensemble:  member.Ensemble,
						Grid:      member.Grid,
						Variable:  variable,
						Year:      year,
						BBox:      p.BBox,
						Extension: p.Extension,
						Status:    StatusPending,
					})
				}
			}
		}
	}

	return jobs, warnings
}

// Count tallies jobs by status.
func Count(jobs []Job) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, j := range jobs {
		counts[j.Status]++
	}
	return counts
}

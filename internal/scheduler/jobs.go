package scheduler

import (
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

// Job names.
const (
	JobBirthday  = "birthday"
	JobMorning   = "morning"
	JobLunch     = "lunch"
	JobAfternoon = "afternoon"
	JobEvening   = "evening"
	JobDinner    = "dinner"
	JobNight     = "night"
)

// Audience selects who a job delivers to.
type Audience int

// Audiences.
const (
	// AudienceSubscribers is every subscribed recipient.
	AudienceSubscribers Audience = iota
	// AudienceBirthdays is every recipient with a birthday today.
	AudienceBirthdays
)

// Job is a time-of-day trigger. A job with no fixed Category computes the
// greeting of the day when it fires.
type Job struct {
	Name     string
	Spec     string
	Category greeting.Category
	Audience Audience
}

// DefaultJobs returns the built-in triggers. Specs have a seconds field.
func DefaultJobs() []Job {
	return []Job{
		{Name: JobBirthday, Spec: "0 30 8 * * *", Category: greeting.Compleanno, Audience: AudienceBirthdays},
		{Name: JobMorning, Spec: "0 30 6 * * *"},
		{Name: JobLunch, Spec: "0 30 12 * * *", Category: greeting.BuonPranzo},
		{Name: JobAfternoon, Spec: "0 40 12 * * *", Category: greeting.BuonPomeriggio},
		{Name: JobEvening, Spec: "0 30 18 * * *", Category: greeting.BuonaSerata},
		{Name: JobDinner, Spec: "0 0 20 * * *", Category: greeting.BuonaCena},
		{Name: JobNight, Spec: "0 30 21 * * *", Category: greeting.BuonaNotte},
	}
}

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// WithSpecs returns jobs with the cron specs in overrides applied. Unknown job
// names and unparsable specs are errors.
func WithSpecs(jobs []Job, overrides map[string]string) ([]Job, error) {
	out := append([]Job(nil), jobs...)
	index := make(map[string]int, len(out))
	for i, j := range out {
		index[j.Name] = i
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		spec := overrides[name]
		if spec == "" {
			continue
		}
		if _, err := specParser.Parse(spec); err != nil {
			return nil, fmt.Errorf("parse spec for job %s: %w", name, err)
		}
		out[i].Spec = spec
	}
	return out, nil
}

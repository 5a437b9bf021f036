package utils

import (
	"github.com/gosimple/slug"
)

// UnitName derives the container name backing a job from its registered
// name. Docker restricts names to [a-zA-Z0-9][a-zA-Z0-9_.-]*, so the job
// name is slugified; the job row keeps the original as the logical key.
func UnitName(jobName string) string {
	if jobName == "" {
		return "job"
	}
	return slug.Make(jobName)
}

package models

import "time"

// Readiness records whether a capture was taken after the readiness marker
// appeared or after the fallback grace period.
type Readiness string

const (
	ReadinessReady    = Readiness("ready")
	ReadinessDegraded = Readiness("degraded")
)

// Diagnosis explains what a degraded capture most likely shows.
type Diagnosis string

const (
	DiagnosisReady     = Diagnosis("ready")
	DiagnosisBlocked   = Diagnosis("blocked")
	DiagnosisNoResults = Diagnosis("no_results")
	DiagnosisUnknown   = Diagnosis("unknown")
)

// ScrapeOutcome is the result of one target run. It is either a success
// (Image set, Kind empty) or a failure (Kind set, Image nil). Use the
// Success and Failure constructors; outcomes are not mutated afterwards.
type ScrapeOutcome struct {
	TargetName string

	// Success fields.
	Image     []byte
	Readiness Readiness
	Diagnosis Diagnosis

	// Failure fields.
	Kind   ErrorKind
	Detail string

	Duration time.Duration
}

// Success builds a successful outcome.
func Success(target string, image []byte, readiness Readiness, diagnosis Diagnosis) ScrapeOutcome {
	return ScrapeOutcome{
		TargetName: target,
		Image:      image,
		Readiness:  readiness,
		Diagnosis:  diagnosis,
	}
}

// Failure builds a failed outcome.
func Failure(target string, kind ErrorKind, detail string) ScrapeOutcome {
	return ScrapeOutcome{
		TargetName: target,
		Kind:       kind,
		Detail:     detail,
	}
}

// Succeeded reports whether the outcome carries an image.
func (o ScrapeOutcome) Succeeded() bool {
	return o.Kind == "" && len(o.Image) > 0
}

// Status is a short label for logs and response headers: the readiness for
// successes ("ready", "degraded") and the error kind for failures.
func (o ScrapeOutcome) Status() string {
	if o.Succeeded() {
		return string(o.Readiness)
	}
	return string(o.Kind)
}

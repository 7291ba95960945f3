package providerhandler

// GroupResult is the per-group outcome of a release operation, spec.md §4.4.6 step 4.
type GroupResult struct {
	ResourceID  string
	InstanceIDs []string
	Err         error
}

// ReleaseReport aggregates per-group release outcomes. Overall success holds
// iff every group succeeded (spec.md §4.4.6 step 4); fleet-deletion failures
// are recorded separately and never fail the overall operation once instance
// termination itself succeeded (spec.md: "cleanup best-effort").
type ReleaseReport struct {
	Groups         []GroupResult
	CleanupErrors  []error
}

func NewReleaseReport() *ReleaseReport { return &ReleaseReport{} }

// Record appends one group's outcome.
func (r *ReleaseReport) Record(resourceID string, instanceIDs []string, err error) {
	r.Groups = append(r.Groups, GroupResult{ResourceID: resourceID, InstanceIDs: instanceIDs, Err: err})
}

// RecordCleanupFailure records a best-effort fleet/ASG teardown failure that
// does not affect overall success.
func (r *ReleaseReport) RecordCleanupFailure(err error) {
	if err != nil {
		r.CleanupErrors = append(r.CleanupErrors, err)
	}
}

// Success reports whether every recorded group succeeded.
func (r *ReleaseReport) Success() bool {
	for _, g := range r.Groups {
		if g.Err != nil {
			return false
		}
	}
	return true
}

// Merge folds another report's groups and cleanup errors into r.
func (r *ReleaseReport) Merge(other *ReleaseReport) {
	if other == nil {
		return
	}
	r.Groups = append(r.Groups, other.Groups...)
	r.CleanupErrors = append(r.CleanupErrors, other.CleanupErrors...)
}

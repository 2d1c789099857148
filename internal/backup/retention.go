package backup

import (
	"context"
	"sort"
	"time"

	"dbguardian/internal/logging"
)

// Tier window lengths. A tier with count N guarantees retention of backups
// newer than N of its windows.
const (
	hourWindow  = time.Hour
	dayWindow   = 24 * time.Hour
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// ShouldKeep decides whether a backup taken at ts is retained under the policy
// at the given reference time. The tiers are overlapping retention guarantees,
// not mutually exclusive buckets: a backup is kept if it falls within any
// configured tier's window, boundary inclusive. Overlap deliberately
// over-retains because irreversible data loss is the worse failure mode.
func ShouldKeep(ts, now time.Time, policy RetentionPolicy) bool {
	age := now.Sub(ts)
	if age < 0 {
		// Clock skew; a backup from the future is always kept.
		return true
	}

	tiers := []struct {
		count  int
		window time.Duration
	}{
		{policy.Hourly, hourWindow},
		{policy.Daily, dayWindow},
		{policy.Weekly, weekWindow},
		{policy.Monthly, monthWindow},
	}

	for _, tier := range tiers {
		if tier.count <= 0 {
			continue
		}
		if age <= time.Duration(tier.count)*tier.window {
			return true
		}
	}
	return false
}

// RetentionDecision is the outcome of applying a policy to a set of backups
type RetentionDecision struct {
	Keep    []ArtifactInfo `json:"keep"`
	Discard []ArtifactInfo `json:"discard"`
}

// ApplyRetention splits backups into keep and discard sets under the policy.
// Order of the input does not affect the decision; both result sets are
// returned newest first.
func ApplyRetention(backups []ArtifactInfo, policy RetentionPolicy, now time.Time) RetentionDecision {
	sorted := make([]ArtifactInfo, len(backups))
	copy(sorted, backups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	decision := RetentionDecision{}
	for _, b := range sorted {
		if ShouldKeep(b.CreatedAt, now, policy) {
			decision.Keep = append(decision.Keep, b)
		} else {
			decision.Discard = append(decision.Discard, b)
		}
	}
	return decision
}

// RetentionJob deletes artifacts that fall outside every retention window
type RetentionJob struct {
	storage StorageProvider
	policy  RetentionPolicy
	logger  *logging.Logger
}

// NewRetentionJob creates a retention cleanup job
func NewRetentionJob(storage StorageProvider, policy RetentionPolicy, logger *logging.Logger) *RetentionJob {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RetentionJob{
		storage: storage,
		policy:  policy,
		logger:  logger,
	}
}

// Run evaluates the policy against the stored artifacts and deletes the
// discard set. With dryRun the decision is returned without deleting anything.
func (rj *RetentionJob) Run(ctx context.Context, prefix string, dryRun bool) (*RetentionDecision, error) {
	artifacts, err := rj.storage.List(ctx, prefix)
	if err != nil {
		return nil, NewStorageError("failed to list backups for retention", err)
	}

	decision := ApplyRetention(artifacts, rj.policy, time.Now())
	rj.logger.WithFields(map[string]interface{}{
		"total":   len(artifacts),
		"keep":    len(decision.Keep),
		"discard": len(decision.Discard),
		"dry_run": dryRun,
	}).Info("Retention policy evaluated")

	if dryRun {
		return &decision, nil
	}

	for _, artifact := range decision.Discard {
		if err := rj.storage.Delete(ctx, artifact.Key); err != nil {
			rj.logger.Errorf("Failed to delete expired backup %s: %v", artifact.Key, err)
			continue
		}
		rj.logger.Infof("Deleted expired backup: %s (created %s)", artifact.Key, artifact.CreatedAt.Format(time.RFC3339))
	}

	return &decision, nil
}

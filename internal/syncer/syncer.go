// Package syncer writes a candidate version into package manifests and
// reports whether anything had to change.
//
// Manifests are processed sequentially and independently: a failure on one
// file is recorded on the [Outcome] and the remaining files are still
// processed.
package syncer

import (
	"log/slog"

	"tools.zach/dev/semsync/internal/manifest"
	"tools.zach/dev/semsync/internal/version"
)

// Outcome accumulates the result of one synchronization run.
type Outcome struct {
	// AnyMismatch is true when at least one manifest was rewritten.
	AnyMismatch bool
	// Updated lists the rewritten manifests.
	Updated []string
	// Unchanged lists manifests that already carried the candidate.
	Unchanged []string
	// Skipped lists manifests without a version key.
	Skipped []string
	// Failed maps manifests that could not be processed to their error.
	Failed map[string]error
	// Regressions lists manifests for which the candidate did not exceed
	// the baseline.
	Regressions []string
}

// Succeeded reports whether every manifest already held the candidate and
// none failed.
func (o *Outcome) Succeeded() bool {
	return !o.AnyMismatch && len(o.Failed) == 0
}

// Regressed reports whether a monotonicity violation was recorded.
func (o *Outcome) Regressed() bool { return len(o.Regressions) > 0 }

// Violates reports whether candidate fails to exceed baseline. A nil
// baseline never violates.
func Violates(candidate version.Version, baseline *version.Version) bool {
	return baseline != nil && !candidate.GreaterThan(*baseline)
}

// Synchronize brings every manifest in paths to candidate, in the order
// given. Manifests without a version key are skipped.
func Synchronize(candidate version.Version, baseline *version.Version, paths []string) *Outcome {
	out := &Outcome{Failed: make(map[string]error)}
	want := candidate.String()

	for _, path := range paths {
		log := slog.With("path", path)
		log.Info("processing manifest")

		rec, err := manifest.Read(path)
		if err != nil {
			log.Error("cannot read manifest", "error", err)
			out.Failed[path] = err
			continue
		}
		if !rec.HasVersion {
			log.Info("no version key, skipping")
			out.Skipped = append(out.Skipped, path)
			continue
		}

		if Violates(candidate, baseline) {
			log.Error("proposed version is not greater than the baseline",
				"candidate", want, "baseline", baseline.String())
			out.Regressions = append(out.Regressions, path)
		}

		if rec.RawVersion == want {
			log.Info("version up to date", "version", want)
			out.Unchanged = append(out.Unchanged, path)
			continue
		}

		if rec.Declared == nil {
			log.Error("declared version is not a semantic version, overwriting",
				"declared", rec.RawVersion, "candidate", want)
		} else {
			log.Warn("version mismatch, rewriting", "declared", rec.RawVersion, "candidate", want)
		}

		if err := rec.SetVersion(candidate); err != nil {
			log.Error("cannot update version", "error", err)
			out.Failed[path] = err
			continue
		}
		if err := rec.Save(); err != nil {
			log.Error("cannot write manifest", "error", err)
			out.Failed[path] = err
			continue
		}
		out.AnyMismatch = true
		out.Updated = append(out.Updated, path)
	}
	return out
}

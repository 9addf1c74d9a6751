// Package pipeline runs the generation stages in order and records every
// transition in the run ledger.
package pipeline

// State is a pipeline checkpoint. States only move forward within a run.
type State string

const (
	StateInit             State = "INIT"
	StateOutlineReady     State = "OUTLINE_READY"
	StateManifestBuilt    State = "MANIFEST_BUILT"
	StateSectionsComplete State = "SECTIONS_COMPLETE"
	StateAssembled        State = "ASSEMBLED"
	StateReviewed         State = "REVIEWED"
	StateReviewSkipped    State = "REVIEW_SKIPPED"
)

// Terminal reports whether s ends a successful run.
func (s State) Terminal() bool {
	return s == StateReviewed || s == StateReviewSkipped
}

// Stage names the unit of work an error or event belongs to.
type Stage string

const (
	StageSource   Stage = "source"
	StageOutline  Stage = "outline"
	StageManifest Stage = "manifest"
	StageSections Stage = "sections"
	StageAssembly Stage = "assembly"
	StageReview   Stage = "review"
)

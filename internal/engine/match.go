package engine

import (
	"context"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/gate"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/matcher"
	"github.com/heungbuja/motionjudge/internal/seqio"
)

// MatchRequest is one nearest-neighbor query. Exactly one source is used, in
// order of preference: NPZ, Images, Landmarks.
type MatchRequest struct {
	NPZ       []byte
	Images    [][]byte
	Landmarks [][][]float64

	// FrameCount, when set, must equal len(Images).
	FrameCount *int
	Metadata   seqio.Metadata

	ActionName string
	ActionCode *int

	// Actions restricts the reference set. Empty loads every action.
	Actions []string
	// ReferenceDir overrides the engine's base directory. Relative paths
	// resolve under the base directory.
	ReferenceDir string
}

// MatchResult is the matcher-path judgment plus diagnostics.
type MatchResult struct {
	RequestID string
	// ActionCode is the caller's code, else the catalog code of the target
	// name, else nil.
	ActionCode *int
	Judgment   int
	Target     string

	Frames int
	Motion float64
	// Reason explains a zero judgment.
	Reason string

	Best     *matcher.Evaluation
	Gate     *gate.Outcome
	Summary  []matcher.ActionSummary
	Metadata seqio.Metadata
}

// Match compares the query against the reference set and scores the closest
// reference of the target action. Insufficient frames, insufficient motion,
// a missing target, a target with no references and a failed gate all yield
// judgment 0 with a nil error.
func (e *Engine) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	target := e.Catalog().Resolve(req.ActionName, req.ActionCode)
	res := &MatchResult{
		RequestID:  newRequestID(),
		ActionCode: req.ActionCode,
		Target:     target.Label,
	}
	if res.ActionCode == nil {
		res.ActionCode = target.Code
	}
	log := e.logger.With("request_id", res.RequestID, "target", target.Label)

	query, metadata, err := e.loadQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Metadata = metadata
	res.Frames = len(query)

	pre := e.thresholds.Check(query)
	res.Motion = pre.Motion
	if !pre.Sufficient() {
		res.Reason = pre.Reason
		log.Info("skipping match", "reason", pre.Reason, "frames", pre.Frames, "motion", pre.Motion,
			"min_frames", e.thresholds.MinFrames, "min_motion", e.thresholds.MinMotion)
		return res, nil
	}

	refs, err := e.LoadReferences(req.ReferenceDir, req.Actions)
	if err != nil {
		return nil, err
	}
	evals, err := matcher.EvaluateQuery(query, refs)
	if err != nil {
		return nil, err
	}
	res.Summary = matcher.SummarizeByAction(evals)

	if target.Empty() {
		res.Reason = "no target action"
		log.Debug("no target action, judgment 0")
		return res, nil
	}
	best, ok := matcher.BestFor(evals, target.Label)
	if !ok {
		res.Reason = "no reference for target action"
		log.Warn("no reference sequence for target action", "references", len(refs))
		return res, nil
	}
	res.Best = &best

	if e.gates.Gated(target.Label) {
		out := e.gates.Check(gate.Input{
			Target:      target.Label,
			Query:       query,
			Best:        best,
			Evaluations: evals,
		})
		res.Gate = &out
		if !out.Passed {
			res.Reason = out.Reason
			log.Info("gate rejected match", "check", out.Check, "reason", out.Reason, "metrics", out.Metrics)
			return res, nil
		}
	}

	res.Judgment = e.thresholds.BySimilarity(best.Distance, best.Cosine)
	log.Info("matcher judgment",
		"judgment", res.Judgment,
		"distance", best.Distance,
		"cosine", best.Cosine,
		"reference", best.Reference.Path,
		"frames", res.Frames,
		"motion", res.Motion,
	)
	return res, nil
}

// loadQuery turns the request's sequence source into a sanitized trunk
// sequence plus its metadata.
func (e *Engine) loadQuery(ctx context.Context, req MatchRequest) (landmark.Sequence, seqio.Metadata, error) {
	switch {
	case len(req.NPZ) > 0:
		seq, meta, err := seqio.LoadNPZ(req.NPZ)
		if err != nil {
			return nil, nil, err
		}
		return seq, meta.Merge(req.Metadata), nil

	case len(req.Images) > 0:
		if req.FrameCount != nil && *req.FrameCount != len(req.Images) {
			return nil, nil, errs.Validationf("frameCount %d does not match %d frames", *req.FrameCount, len(req.Images))
		}
		ext, err := e.extractPoses(ctx, req.Images)
		if err != nil {
			return nil, nil, err
		}
		meta := seqio.Metadata{}.Merge(req.Metadata)
		meta.SetDefault("source", "frames")
		meta.SetDefault("frame_count", len(ext.seq))
		e.targetDefaults(meta, req)
		return ext.seq, meta, nil

	case len(req.Landmarks) > 0:
		seq, err := landmark.Sanitize(req.Landmarks)
		if err != nil {
			return nil, nil, err
		}
		meta := seqio.Metadata{}.Merge(req.Metadata)
		e.targetDefaults(meta, req)
		return seq, meta, nil
	}
	return nil, nil, ErrNoQuery
}

func (e *Engine) targetDefaults(meta seqio.Metadata, req MatchRequest) {
	if req.ActionCode != nil {
		meta.SetDefault("action_code", *req.ActionCode)
	}
	if action.Normalize(req.ActionName) != "" {
		meta.SetDefault("action_name", req.ActionName)
	}
}

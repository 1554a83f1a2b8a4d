package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/detector"
	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
)

// ClassifyResult is the classifier-path judgment plus diagnostics.
type ClassifyResult struct {
	RequestID string
	// ActionCode is the caller's code, else the catalog code of the
	// predicted label, else the predicted class index plus one.
	ActionCode        int
	Judgment          int
	PredictedLabel    string
	Confidence        float64
	TargetProbability *float64
	Probabilities     map[string]float64

	DecodeTime    time.Duration
	PoseTime      time.Duration
	InferenceTime time.Duration
	// ValidFrames counts frames with a detected pose on the image path.
	ValidFrames int
}

// ClassifyPoses judges raw landmark frames (frames x landmarks x channels)
// against the target given by name and/or code. Frames are sampled to the
// model's frames-per-sample before normalization.
func (e *Engine) ClassifyPoses(frames [][][]float64, name string, code *int) (*ClassifyResult, error) {
	if e.model == nil {
		return nil, ErrModelUnavailable
	}
	if len(frames) == 0 {
		return nil, landmark.ErrEmptySequence
	}

	start := time.Now()
	seq, err := landmark.Sanitize(frames)
	if err != nil {
		return nil, err
	}
	seq = landmark.SampleFrames(seq, e.model.FramesPerSample())
	norm, err := landmark.NormalizeMaxExtent(seq)
	if err != nil {
		return nil, err
	}

	res, err := e.classify(norm, name, code)
	if err != nil {
		return nil, err
	}
	res.PoseTime = time.Since(start) - res.InferenceTime
	e.logClassify("poses", name, code, res)
	return res, nil
}

// ClassifyImages samples encoded images to the model's frames-per-sample,
// extracts a pose from each and judges the frames that had one. The
// normalized sequence keeps however many frames were valid.
func (e *Engine) ClassifyImages(ctx context.Context, images [][]byte, name string, code *int) (*ClassifyResult, error) {
	if e.model == nil {
		return nil, ErrModelUnavailable
	}
	if len(images) == 0 {
		return nil, errs.Validationf("frames must not be empty")
	}

	var sampled [][]byte
	for _, i := range landmark.SampleIndices(len(images), e.model.FramesPerSample()) {
		sampled = append(sampled, images[i])
	}

	ext, err := e.extractPoses(ctx, sampled)
	if err != nil {
		return nil, err
	}
	if len(ext.seq) < e.minValidFrames {
		return nil, fmt.Errorf("%w: %d of %d frames, need %d", ErrInsufficientFrames, len(ext.seq), len(sampled), e.minValidFrames)
	}

	norm, err := landmark.NormalizeMaxExtent(ext.seq)
	if err != nil {
		return nil, err
	}
	res, err := e.classify(norm, name, code)
	if err != nil {
		return nil, err
	}
	res.DecodeTime = ext.decode
	res.PoseTime = ext.pose
	res.ValidFrames = len(ext.seq)
	e.logClassify("images", name, code, res)
	return res, nil
}

func (e *Engine) classify(norm landmark.Sequence, name string, code *int) (*ClassifyResult, error) {
	start := time.Now()
	pred, err := e.model.Predict(norm)
	if err != nil {
		return nil, err
	}

	res := &ClassifyResult{
		RequestID:      newRequestID(),
		PredictedLabel: pred.Label,
		Confidence:     pred.Confidence,
		Probabilities:  make(map[string]float64, len(pred.Probabilities)),
		InferenceTime:  time.Since(start),
	}
	for i, p := range pred.Probabilities {
		res.Probabilities[e.model.Label(i)] = p
	}

	if idx, ok := e.targetIndex(name, code); ok {
		p, _ := pred.Probability(idx)
		res.TargetProbability = floatPtr(p)
		res.Judgment = e.thresholds.ByProbability(p)
	} else {
		res.Judgment = e.thresholds.Fallback(pred.Label, pred.Confidence, name)
	}

	res.ActionCode = e.resolvedCode(pred, code)
	return res, nil
}

// targetIndex maps the request target onto a model class. A catalog code
// wins when its label is one of the model's classes.
func (e *Engine) targetIndex(name string, code *int) (int, bool) {
	if code != nil {
		if label, ok := e.Catalog().Label(*code); ok {
			if idx, ok := e.model.ClassIndex(label); ok {
				return idx, true
			}
		}
	}
	if label := action.Normalize(name); label != "" {
		return e.model.ClassIndex(label)
	}
	return 0, false
}

func (e *Engine) resolvedCode(pred classifier.Prediction, code *int) int {
	if code != nil {
		return *code
	}
	if c, ok := e.Catalog().Code(pred.Label); ok {
		return c
	}
	return pred.Index + 1
}

func (e *Engine) logClassify(source, name string, code *int, res *ClassifyResult) {
	attrs := []any{
		"request_id", res.RequestID,
		"source", source,
		"target", name,
		"predicted", res.PredictedLabel,
		"confidence", res.Confidence,
		"judgment", res.Judgment,
		"action_code", res.ActionCode,
		"inference_ms", ms(res.InferenceTime),
	}
	if code != nil {
		attrs = append(attrs, "target_code", *code)
	}
	if res.TargetProbability != nil {
		attrs = append(attrs, "target_probability", *res.TargetProbability)
	}
	e.logger.Info("classifier judgment", attrs...)
}

// extraction is the outcome of running the detector over encoded images.
type extraction struct {
	seq    landmark.Sequence
	decode time.Duration
	pose   time.Duration
}

// extractPoses decodes and runs pose detection on each image in order,
// skipping images where nobody was found. The returned sequence is reduced
// to the trunk layout.
func (e *Engine) extractPoses(ctx context.Context, images [][]byte) (extraction, error) {
	var ext extraction
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return ext, err
		}

		start := time.Now()
		mat, err := detector.DecodeImage(img)
		ext.decode += time.Since(start)
		if err != nil {
			mat.Close()
			return ext, fmt.Errorf("frame %d: %w", i, err)
		}

		start = time.Now()
		pose, err := e.detector.Detect(&mat)
		ext.pose += time.Since(start)
		mat.Close()
		if err != nil {
			return ext, fmt.Errorf("frame %d: %w", i, err)
		}
		if pose == nil {
			e.logger.Debug("no pose detected, skipping frame", "frame", i)
			continue
		}
		ext.seq = append(ext.seq, pose.Frame())
	}

	if len(ext.seq) > 0 {
		if err := ext.seq.Validate(); err != nil {
			return ext, err
		}
	}
	ext.seq = landmark.ReduceToTrunk(ext.seq)
	return ext, nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

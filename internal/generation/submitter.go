package generation

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"

	"charagen/internal/domain"
	"charagen/internal/infra"
	"charagen/internal/providers/inference"
)

const (
	DefaultDimension       = 512
	DefaultSteps           = 30
	MinSteps               = 20
	DefaultGuidanceScale   = 7.5
	DefaultScheduler       = "DPMSolverMultistep"
	DefaultAdapterStrength = 0.8
	MinAdapterStrength     = 0.1
	MaxAdapterStrength     = 1.0
	// SeedLimit is the exclusive upper bound of generated seeds.
	SeedLimit = 2147483647
)

// DefaultNegativePrompt is sent when the caller leaves the negative prompt empty.
const DefaultNegativePrompt = "lowres, bad anatomy, bad hands, text, error, missing fingers, extra digit, fewer digits, cropped, worst quality, low quality, jpeg artifacts, signature, watermark, username, blurry"

// Provider is the remote inference API driven by the lifecycle.
type Provider interface {
	CreateJob(ctx context.Context, req inference.JobRequest) (*inference.Job, error)
	GetJob(ctx context.Context, jobID string) (*inference.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

// SubmitterOptions configures request defaults.
type SubmitterOptions struct {
	Model string
	// FullStrengthAdapters lists adapter URLs that always run at strength 1.0.
	FullStrengthAdapters []string
	// Seed overrides the random seed source. Must return values in [0, SeedLimit).
	Seed   func() int64
	Logger *infra.Logger
}

// Submitter normalizes generation requests and creates provider jobs.
type Submitter struct {
	provider     Provider
	model        string
	fullStrength map[string]struct{}
	seed         func() int64
	logger       infra.Logger
}

// Submission is the accepted provider job.
type Submission struct {
	JobID   string
	Status  domain.JobStatus
	Request inference.JobRequest
}

func NewSubmitter(provider Provider, opts SubmitterOptions) *Submitter {
	full := make(map[string]struct{}, len(opts.FullStrengthAdapters))
	for _, u := range opts.FullStrengthAdapters {
		if u = strings.TrimSpace(u); u != "" {
			full[u] = struct{}{}
		}
	}
	seed := opts.Seed
	if seed == nil {
		seed = func() int64 { return rand.Int64N(SeedLimit) }
	}
	return &Submitter{
		provider:     provider,
		model:        strings.TrimSpace(opts.Model),
		fullStrength: full,
		seed:         seed,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

// Prepare validates req and applies every default. It performs no I/O.
func (s *Submitter) Prepare(req domain.GenerationRequest) (inference.JobRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return inference.JobRequest{}, domain.ValidationError("Prompt is required", domain.ErrInvalidPrompt)
	}

	out := inference.JobRequest{
		Model:             s.model,
		Prompt:            prompt,
		NegativePrompt:    strings.TrimSpace(req.NegativePrompt),
		Width:             req.Width,
		Height:            req.Height,
		NumInferenceSteps: req.Steps,
		GuidanceScale:     DefaultGuidanceScale,
		Scheduler:         DefaultScheduler,
	}
	if out.Width <= 0 {
		out.Width = DefaultDimension
	}
	if out.Height <= 0 {
		out.Height = DefaultDimension
	}
	if out.NumInferenceSteps < MinSteps {
		out.NumInferenceSteps = DefaultSteps
	}
	if out.NegativePrompt == "" {
		out.NegativePrompt = DefaultNegativePrompt
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = s.seed()
	}
	out.Seed = &seed

	if adapter := strings.TrimSpace(req.StyleAdapterURL); adapter != "" {
		strength := s.adapterStrength(adapter, req.StyleAdapterStrength)
		out.LoraURL = adapter
		out.LoraScale = &strength
	}
	return out, nil
}

func (s *Submitter) adapterStrength(adapter string, requested *float64) float64 {
	if _, ok := s.fullStrength[adapter]; ok {
		return MaxAdapterStrength
	}
	strength := DefaultAdapterStrength
	if requested != nil && !math.IsNaN(*requested) {
		strength = *requested
	}
	strength = math.Min(MaxAdapterStrength, math.Max(MinAdapterStrength, strength))
	return math.Round(strength*10) / 10
}

// Submit prepares req and creates the provider job.
func (s *Submitter) Submit(ctx context.Context, req domain.GenerationRequest) (Submission, error) {
	payload, err := s.Prepare(req)
	if err != nil {
		return Submission{}, err
	}
	return s.SubmitPrepared(ctx, payload)
}

// SubmitPrepared sends an already prepared payload.
func (s *Submitter) SubmitPrepared(ctx context.Context, payload inference.JobRequest) (Submission, error) {
	if strings.TrimSpace(payload.Prompt) == "" {
		return Submission{}, domain.ValidationError("Prompt is required", domain.ErrInvalidPrompt)
	}
	job, err := s.provider.CreateJob(ctx, payload)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.ProviderError(NormalizeError(err), err)
		}
		return Submission{}, err
	}
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return Submission{}, domain.ProviderError("provider returned no job id", domain.ErrProviderFailure)
	}
	status := domain.JobStatusProcessing
	if strings.EqualFold(strings.TrimSpace(job.Status), string(domain.JobStatusStarting)) {
		status = domain.JobStatusStarting
	}
	s.logger.Info().Str("job_id", job.ID).Str("status", string(status)).Int("steps", payload.NumInferenceSteps).Msg("generation: job submitted")
	return Submission{JobID: job.ID, Status: status, Request: payload}, nil
}

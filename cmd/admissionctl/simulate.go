package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/ratelimit"
	"github.com/AntonStoeckl/library-admission-go/retry"
)

const (
	flagRequests         = "requests"
	flagActors           = "actors"
	flagConcurrency      = "concurrency"
	flagMaxAttempts      = "max-attempts"
	flagOrigins          = "origins"
	flagFailureThreshold = "failure-threshold"
	flagBlockDuration    = "block-duration"

	outcomeSuccess = "success"
	outcomeBlocked = "origin_blocked"

	retryOperation = "simulate_request_loan"

	logMsgSimulationRequestFailed = "simulated request failed"
)

var errInvalidSimulation = errors.New("invalid simulation parameters")

type simulationParams struct {
	Requests    int
	Copies      int
	Actors      int
	Concurrency int
	MaxAttempts int
	// Origins spreads the requests over that many callers guarded by the failure limiter; 0 disables it.
	Origins          int
	FailureThreshold int
	BlockDuration    time.Duration
}

func (p simulationParams) validate() error {
	switch {
	case p.Requests < 1:
		return fmt.Errorf("%w: --%s must be at least 1", errInvalidSimulation, flagRequests)
	case p.Copies < 0:
		return fmt.Errorf("%w: --%s must not be negative", errInvalidSimulation, flagCopies)
	case p.Actors < 0:
		return fmt.Errorf("%w: --%s must not be negative", errInvalidSimulation, flagActors)
	case p.Concurrency < 1:
		return fmt.Errorf("%w: --%s must be at least 1", errInvalidSimulation, flagConcurrency)
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: --%s must be at least 1", errInvalidSimulation, flagMaxAttempts)
	case p.Origins < 0:
		return fmt.Errorf("%w: --%s must not be negative", errInvalidSimulation, flagOrigins)
	}

	return nil
}

type simulationReport struct {
	ResourceID   uuid.UUID           `json:"resourceId"`
	Requests     int                 `json:"requests"`
	Outcomes     map[string]int      `json:"outcomes"`
	Retries      int                 `json:"retries"`
	ElapsedMS    int64               `json:"elapsedMs"`
	Inventory    admission.Inventory `json:"inventory"`
	OverAdmitted bool                `json:"overAdmitted"`
}

type requestOutcome struct {
	reason   string
	attempts int
}

// simulate fires p.Requests loan requests for one resource with p.Copies copies and tallies the outcomes.
// Business rejections are outcomes, not errors; only infrastructure failures abort the run.
func simulate(ctx context.Context, a *app, p simulationParams) (simulationReport, error) {
	if err := p.validate(); err != nil {
		return simulationReport{}, err
	}

	limiter, err := newSimulationLimiter(a, p)
	if err != nil {
		return simulationReport{}, err
	}

	resourceID := uuid.New()
	if err = a.store.PutInventory(ctx, admission.BuildInventory(resourceID, p.Copies)); err != nil {
		return simulationReport{}, err
	}

	actors := make([]uuid.UUID, p.Actors)
	for i := range actors {
		actors[i] = uuid.New()
	}

	retryOptions := []retry.Option{retry.WithMaxAttempts(p.MaxAttempts)}
	if a.telemetry != nil {
		retryOptions = append(retryOptions, retry.WithMetrics(a.telemetry.metrics, retryOperation))
	}

	outcomes := make([]requestOutcome, p.Requests)
	start := time.Now()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.Concurrency)

	for i := range p.Requests {
		group.Go(func() error {
			origin := ""
			if limiter != nil {
				origin = fmt.Sprintf("origin-%d", i%p.Origins)
				if limiter.IsBlocked(origin) {
					outcomes[i] = requestOutcome{reason: outcomeBlocked}
					return nil
				}
			}

			actorID := uuid.New()
			if len(actors) > 0 {
				actorID = actors[i%len(actors)]
			}

			meta, reqErr := retry.OnContention(groupCtx, func(ctx context.Context) error {
				_, loanErr := a.engine.RequestLoan(ctx, actorID, resourceID)
				return loanErr
			}, retryOptions...)

			switch {
			case reqErr == nil:
				outcomes[i] = requestOutcome{reason: outcomeSuccess, attempts: meta.Attempts}
				if limiter != nil {
					limiter.RecordSuccess(origin)
				}

				return nil

			case admission.IsBusinessRejection(reqErr):
				outcomes[i] = requestOutcome{reason: admission.RejectionReason(reqErr), attempts: meta.Attempts}
				if limiter != nil {
					limiter.RecordFailure(origin)
				}

				return nil

			case admission.IsRetryable(reqErr):
				outcomes[i] = requestOutcome{reason: admission.RejectionReason(reqErr), attempts: meta.Attempts}
				return nil

			default:
				a.logger.WarnContext(groupCtx, logMsgSimulationRequestFailed, "error", reqErr.Error())
				return reqErr
			}
		})
	}

	if err = group.Wait(); err != nil {
		return simulationReport{}, err
	}

	inventory, err := a.store.LoadInventory(ctx, resourceID)
	if err != nil {
		return simulationReport{}, err
	}

	report := simulationReport{
		ResourceID: resourceID,
		Requests:   p.Requests,
		Outcomes:   make(map[string]int),
		ElapsedMS:  time.Since(start).Milliseconds(),
		Inventory:  inventory,
	}

	for _, o := range outcomes {
		report.Outcomes[o.reason]++
		if o.attempts > 1 {
			report.Retries += o.attempts - 1
		}
	}

	report.OverAdmitted = report.Outcomes[outcomeSuccess] > p.Copies ||
		inventory.AvailableCopies != p.Copies-report.Outcomes[outcomeSuccess]

	return report, nil
}

func newSimulationLimiter(a *app, p simulationParams) (*ratelimit.Limiter, error) {
	if p.Origins == 0 {
		return nil, nil
	}

	options := []ratelimit.Option{
		ratelimit.WithThreshold(p.FailureThreshold),
		ratelimit.WithBlockDuration(p.BlockDuration),
		ratelimit.WithLogger(a.logger),
	}

	if a.telemetry != nil {
		options = append(options, ratelimit.WithMetrics(a.telemetry.metrics))
	}

	return ratelimit.New(options...)
}

func newSimulateCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	p := simulationParams{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fire concurrent loan requests at one fresh resource and report the outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				report, err := simulate(ctx, a, p)
				if err != nil {
					return err
				}

				return writeJSON(a.out, report)
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&p.Requests, flagRequests, 10, "number of loan requests")
	flags.IntVar(&p.Copies, flagCopies, 1, "copies of the simulated resource")
	flags.IntVar(&p.Actors, flagActors, 0, "distinct actors the requests are spread over, 0 gives every request its own actor")
	flags.IntVar(&p.Concurrency, flagConcurrency, 10, "requests in flight at the same time")
	flags.IntVar(&p.MaxAttempts, flagMaxAttempts, 6, "attempts per request while it hits lock contention")
	flags.IntVar(&p.Origins, flagOrigins, 0, "callers guarded by the failure limiter, 0 disables the limiter")
	flags.IntVar(&p.FailureThreshold, flagFailureThreshold, ratelimit.DefaultThreshold, "rejections before an origin is blocked")
	flags.DurationVar(&p.BlockDuration, flagBlockDuration, ratelimit.DefaultBlockDuration, "how long a blocked origin stays blocked")

	return cmd
}

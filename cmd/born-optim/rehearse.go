package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/born-optim/internal/backend/cpu"
	"github.com/born-ml/born-optim/internal/checkpoint"
	"github.com/born-ml/born-optim/internal/config"
	"github.com/born-ml/born-optim/internal/device"
	"github.com/born-ml/born-optim/internal/optim"
	"github.com/born-ml/born-optim/internal/tensor"
)

// rehearsal is the outcome of a rehearse run.
type rehearsal struct {
	RunID      uuid.UUID
	Norms      []float64 // Pre-clip gradient norm per step
	Checkpoint string    // Empty when no checkpoint was written
}

func newRehearseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rehearse",
		Short: "Run data-parallel training steps on synthetic parameters",
		Long: `Rehearse runs the full optimizer protocol on synthetic data:

  1. Shard workers compute gradients concurrently into private host buffers
  2. The shard gradients are accumulated into the optimizer one at a time
  3. Weight decay and global gradient clipping are applied
  4. The rehearsal momentum rule updates every parameter

Parameters are spread round-robin over the host and every opened device.
The final optimizer state is written as a checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, release, err := openDevices(a.cfg.Devices, a.logger)
			if err != nil {
				return err
			}
			defer release()

			res, err := runRehearsal(cmd.Context(), a.cfg.Training, devices, a.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d steps\n", res.RunID, len(res.Norms))
			fmt.Fprintf(out, "grad norm: %.6g -> %.6g\n", res.Norms[0], res.Norms[len(res.Norms)-1])
			if res.Checkpoint != "" {
				fmt.Fprintf(out, "checkpoint: %s\n", res.Checkpoint)
			}
			return nil
		},
	}
}

// runRehearsal trains synthetic parameters toward per-shard targets under
// the loss 0.5*mean_s(||p - target_s||^2).
func runRehearsal(ctx context.Context, cfg config.TrainingConfig, devices *device.Context, logger *zap.Logger) (*rehearsal, error) {
	runID := uuid.New()
	logger = logger.With(zap.String("run_id", runID.String()))

	shape := tensor.Shape{cfg.ParamSize}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0)) //nolint:gosec // Synthetic data.

	locations := devices.Locations()
	params := make([]tensor.Buffer, cfg.Params)
	grads := make([]tensor.Buffer, cfg.Params)
	for i := range params {
		values := make([]float32, cfg.ParamSize)
		for j := range values {
			values[j] = float32(rng.NormFloat64())
		}

		loc := locations[i%len(locations)]
		dev, err := devices.Lookup(loc)
		if err != nil {
			return nil, err
		}
		err = devices.Use(loc, func() error {
			var allocErr error
			if params[i], allocErr = dev.Upload(values, shape); allocErr != nil {
				return allocErr
			}
			grads[i], allocErr = params[i].Like()
			return allocErr
		})
		if err != nil {
			return nil, fmt.Errorf("param %d on %s: %w", i, loc, err)
		}
	}

	targets := shardTargets(cfg, rng)

	opt := optim.New(
		rehearsalRule{lr: float32(cfg.LearningRate), mu: float32(cfg.Momentum)},
		optim.WithContext(devices),
		optim.WithLogger(logger),
	)
	if err := opt.Setup(params, grads); err != nil {
		return nil, err
	}

	res := &rehearsal{RunID: runID}
	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		host, err := readParams(devices, params)
		if err != nil {
			return nil, err
		}
		shardGrads, err := computeShardGrads(ctx, host, targets, shape)
		if err != nil {
			return nil, err
		}

		if err := opt.ZeroGrads(); err != nil {
			return nil, err
		}
		// The optimizer is not safe for concurrent use; accumulate serially.
		for s, g := range shardGrads {
			if err := opt.AccumulateGrads(g); err != nil {
				return nil, fmt.Errorf("shard %d: %w", s, err)
			}
		}
		if err := opt.WeightDecay(cfg.WeightDecay); err != nil {
			return nil, err
		}
		norm, err := opt.ClipGrads(cfg.MaxGradNorm)
		if err != nil {
			return nil, err
		}
		if err := opt.Update(); err != nil {
			return nil, err
		}

		res.Norms = append(res.Norms, norm)
		logger.Info("rehearsal step",
			zap.Int("step", step),
			zap.Float64("grad_norm", norm),
			zap.Bool("clipped", norm > cfg.MaxGradNorm),
		)
	}

	if cfg.Checkpoint != "" {
		snap, err := opt.StateDict()
		if err != nil {
			return nil, err
		}
		err = checkpoint.Save(cfg.Checkpoint, snap, checkpoint.SaveOptions{
			RunID: runID,
			Metadata: map[string]string{
				"shards":  strconv.Itoa(cfg.Shards),
				"devices": strconv.Itoa(len(locations)),
			},
		})
		if err != nil {
			return nil, err
		}
		res.Checkpoint = cfg.Checkpoint
		logger.Info("checkpoint written", zap.String("path", cfg.Checkpoint), zap.Int("t", snap.T))
	}
	return res, nil
}

// shardTargets draws one target vector per shard and parameter.
func shardTargets(cfg config.TrainingConfig, rng *rand.Rand) [][][]float32 {
	targets := make([][][]float32, cfg.Shards)
	for s := range targets {
		targets[s] = make([][]float32, cfg.Params)
		for i := range targets[s] {
			t := make([]float32, cfg.ParamSize)
			for j := range t {
				t[j] = float32(rng.NormFloat64())
			}
			targets[s][i] = t
		}
	}
	return targets
}

// readParams copies every parameter to the host.
func readParams(devices *device.Context, params []tensor.Buffer) ([][]float32, error) {
	host := make([][]float32, len(params))
	for i, p := range params {
		err := devices.Use(p.Location(), func() error {
			var readErr error
			host[i], readErr = p.Host()
			return readErr
		})
		if err != nil {
			return nil, fmt.Errorf("read param %d: %w", i, err)
		}
	}
	return host, nil
}

// computeShardGrads runs one worker per shard. Worker s writes
// (p - target_s) / shards into its own host buffers only.
func computeShardGrads(ctx context.Context, params [][]float32, targets [][][]float32, shape tensor.Shape) ([][]tensor.Buffer, error) {
	shards := len(targets)
	out := make([][]tensor.Buffer, shards)
	scale := 1 / float32(shards)

	g, ctx := errgroup.WithContext(ctx)
	for s := range shards {
		g.Go(func() error {
			grads := make([]tensor.Buffer, len(params))
			for i, p := range params {
				if err := ctx.Err(); err != nil {
					return err
				}
				buf, err := cpu.New(shape)
				if err != nil {
					return err
				}
				data := buf.Data()
				for j := range data {
					data[j] = (p[j] - targets[s][i][j]) * scale
				}
				grads[i] = buf
			}
			out[s] = grads
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

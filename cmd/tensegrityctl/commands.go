package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tensegrity/internal/config"
	"tensegrity/internal/cpgconfig"
	sim "tensegrity/internal/tensegrity"
	"tensegrity/pkg/tensegrity"
)

// episodeFlags are the robot and timing flags of commands that run or
// describe an episode.
type episodeFlags struct {
	robot     string
	structure string
	segments  int
	ticks     int
	dt        float64
	params    string
	mode      string
}

func (f *episodeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.robot, "robot", "t6", "robot name, see `tensegrityctl robots`")
	fs.IntVar(&f.segments, "segments", 0, "segment count for segmented robots")
	fs.IntVar(&f.ticks, "ticks", 5000, "simulation ticks")
	fs.Float64Var(&f.dt, "dt", 0.001, "timestep in seconds")
	fs.StringVar(&f.params, "params", "", "CPG parameter set file (yaml or json)")
	fs.StringVar(&f.structure, "structure", "", "structure document (yaml or json) to simulate instead of --robot")
	fs.StringVar(&f.mode, "mode", "rest_length", "muscle group mode: rest_length|impedance|tension")
}

func (f *episodeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("robot") {
		cfg.Robot = f.robot
	}
	if fs.Changed("segments") {
		cfg.Segments = f.segments
	}
	if fs.Changed("ticks") {
		cfg.Ticks = f.ticks
	}
	if fs.Changed("dt") {
		cfg.Dt = f.dt
	}
	if fs.Changed("params") {
		cfg.Params = f.params
	}
	if fs.Changed("structure") {
		cfg.Structure = f.structure
	}
	if fs.Changed("mode") {
		cfg.Control.Mode = f.mode
	}
}

func (g *globals) session(cmd *cobra.Command, ep *episodeFlags) (*session, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if ep != nil {
		ep.apply(cmd, &cfg)
	}
	return g.open(cmd, cfg)
}

func newRobotsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "robots",
		Short: "List registered robots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.session(cmd, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "NAME\tSEGMENTS\tDESCRIPTION")
			for _, r := range s.client.Robots() {
				segments := "-"
				if r.DefaultSegments > 0 {
					segments = fmt.Sprint(r.DefaultSegments)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, segments, r.Description)
			}
			return w.Flush()
		},
	}
}

func newLayoutCmd(g *globals) *cobra.Command {
	ep := &episodeFlags{}
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show the oscillator layout parameter sets must match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.session(cmd, ep)
			if err != nil {
				return err
			}
			defer s.Close()

			req, err := s.episode()
			if err != nil {
				return err
			}
			layout, err := s.client.Layout(req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			robot := s.cfg.Robot
			if s.cfg.Structure != "" {
				robot = s.cfg.Structure
			}
			fmt.Fprintf(out, "robot %s: %d oscillators, %d node params, %d edge params\n",
				robot, layout.Oscillators(), cpgconfig.NodeParamCount, cpgconfig.EdgeParamCount)
			w := newTable(out)
			fmt.Fprintln(w, "INDEX\tGROUP\tROLE")
			for i, group := range layout.Groups {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i, group.Name, group.Role)
			}
			return w.Flush()
		},
	}
	ep.register(cmd)
	return cmd
}

func newSimulateCmd(g *globals) *cobra.Command {
	ep := &episodeFlags{}
	var (
		controller string
		paramSetID string
		trace      int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one episode and store the trial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.session(cmd, ep)
			if err != nil {
				return err
			}
			defer s.Close()

			episode, err := s.episode()
			if err != nil {
				return err
			}
			req := tensegrity.SimulateRequest{
				EpisodeRequest: episode,
				Controller:     controller,
				ParamSetID:     paramSetID,
			}
			if s.cfg.Params != "" {
				params, err := cpgconfig.Load(s.cfg.Params)
				if err != nil {
					return err
				}
				req.Params = &params
			}
			out := cmd.OutOrStdout()
			if trace > 0 {
				req.Observe = func(tick int, m *sim.Model) {
					if (tick+1)%trace != 0 {
						return
					}
					com := m.CenterOfMass()
					fmt.Fprintf(out, "tick %d com (%.4f, %.4f, %.4f)\n", tick+1, com.X, com.Y, com.Z)
				}
			}

			summary, runErr := s.client.Simulate(cmd.Context(), req)
			if summary.TrialID == "" {
				return runErr
			}
			printSimulateSummary(out, summary)
			return runErr
		},
	}
	ep.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&controller, "controller", tensegrity.ControllerCPG, "controller: cpg|sine")
	fs.StringVar(&paramSetID, "param-set", "", "stored param set id to drive the CPG")
	fs.IntVar(&trace, "trace", 0, "print the center of mass every N ticks")
	return cmd
}

func printSimulateSummary(out io.Writer, s tensegrity.SimulateSummary) {
	fmt.Fprintf(out, "trial %s\n", s.TrialID)
	fmt.Fprintf(out, "robot %s status %s\n", s.Robot, s.Status)
	fmt.Fprintf(out, "fitness %s over %s ticks (%s clamps) in %s\n",
		humanize.FtoaWithDigits(s.Fitness, 6),
		humanize.Comma(int64(s.Ticks)),
		humanize.Comma(int64(s.Clamps)),
		s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "com (%.4f, %.4f, %.4f) -> (%.4f, %.4f, %.4f)\n",
		s.StartCOM.X, s.StartCOM.Y, s.StartCOM.Z, s.EndCOM.X, s.EndCOM.Y, s.EndCOM.Z)
}

func newTuneCmd(g *globals) *cobra.Command {
	ep := &episodeFlags{}
	var (
		attempts int
		seed     int64
		out      string
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Hill-climb CPG parameters and store the best set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.session(cmd, ep)
			if err != nil {
				return err
			}
			defer s.Close()

			fs := cmd.Flags()
			if fs.Changed("attempts") {
				s.cfg.Tuning.Attempts = attempts
			}
			if fs.Changed("seed") {
				s.cfg.Tuning.Seed = seed
			}
			if err := s.cfg.Validate(); err != nil {
				return err
			}

			episode, err := s.episode()
			if err != nil {
				return err
			}
			hc := s.cfg.HillClimber()
			req := tensegrity.TuneRequest{
				EpisodeRequest:     episode,
				Attempts:           s.cfg.Tuning.Attempts,
				Seed:               s.cfg.Tuning.Seed,
				Steps:              hc.Steps,
				StepSize:           hc.StepSize,
				PerturbationRange:  hc.PerturbationRange,
				AnnealingFactor:    hc.AnnealingFactor,
				MinImprovement:     hc.MinImprovement,
				GoalFitness:        hc.GoalFitness,
				CandidateSelection: hc.CandidateSelection,
			}
			if s.cfg.Params != "" {
				initial, err := cpgconfig.Load(s.cfg.Params)
				if err != nil {
					return err
				}
				req.Initial = &initial
			}

			summary, err := s.client.Tune(cmd.Context(), req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s\n", summary.RunID)
			fmt.Fprintf(w, "param set %s\n", summary.ParamSetID)
			fmt.Fprintf(w, "fitness %s -> %s (%d/%d attempts, %d accepted)\n",
				humanize.FtoaWithDigits(summary.InitialFitness, 6),
				humanize.FtoaWithDigits(summary.BestFitness, 6),
				summary.Report.AttemptsExecuted,
				summary.Report.AttemptsPlanned,
				summary.Report.AcceptedCandidates)
			if out != "" {
				if err := cpgconfig.Save(out, summary.Params); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %s\n", out)
			}
			return nil
		},
	}
	ep.register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&attempts, "attempts", 20, "tuning attempts")
	fs.Int64Var(&seed, "seed", 1, "random seed")
	fs.StringVar(&out, "out", "", "write the best param set to this file")
	return cmd
}

func newRunsCmd(g *globals) *cobra.Command {
	var (
		kind  string
		robot string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored trials, tuning runs or param sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.session(cmd, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			req := tensegrity.RunsRequest{Robot: robot, Limit: limit}
			w := newTable(cmd.OutOrStdout())
			switch kind {
			case "trials":
				trials, err := s.client.Trials(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tROBOT\tSTATUS\tFITNESS\tTICKS\tSTARTED")
				for _, t := range trials {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Robot, t.Status,
						humanize.FtoaWithDigits(t.Fitness, 6), humanize.Comma(int64(t.Ticks)), humanize.Time(t.StartedAt))
				}
			case "tuning":
				runs, err := s.client.TuningRuns(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tROBOT\tATTEMPTS\tACCEPTED\tBEST\tCREATED")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Robot, r.Iterations, r.Accepted,
						humanize.FtoaWithDigits(r.BestFitness, 6), humanize.Time(r.CreatedAt))
				}
			case "params":
				sets, err := s.client.ParamSets(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tROBOT\tSOURCE\tGROUPS\tFITNESS\tCREATED")
				for _, p := range sets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", p.ID, p.Robot, p.Source, len(p.Groups),
						humanize.FtoaWithDigits(p.Fitness, 6), humanize.Time(p.CreatedAt))
				}
			default:
				return fmt.Errorf("unknown kind %q: want trials, tuning or params", kind)
			}
			return w.Flush()
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&kind, "kind", "trials", "record kind: trials|tuning|params")
	fs.StringVar(&robot, "robot", "", "only records for this robot")
	fs.IntVar(&limit, "limit", 20, "maximum records, newest first (0 for all)")
	return cmd
}

func newShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored trial, tuning run or param set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.session(cmd, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			id := args[0]
			out := cmd.OutOrStdout()

			t, err := s.client.Trial(ctx, id)
			if err == nil {
				fmt.Fprintf(out, "trial %s (%s)\n", t.ID, humanize.Time(t.StartedAt))
				fmt.Fprintf(out, "robot %s status %s\n", t.Robot, t.Status)
				if t.ParamSetID != "" {
					fmt.Fprintf(out, "param set %s\n", t.ParamSetID)
				}
				fmt.Fprintf(out, "fitness %s over %s ticks at dt %g\n",
					humanize.FtoaWithDigits(t.Fitness, 6), humanize.Comma(int64(t.Ticks)), t.Timestep)
				if t.Error != "" {
					fmt.Fprintf(out, "error %s\n", t.Error)
				}
				return nil
			}
			if !errors.Is(err, tensegrity.ErrTrialNotFound) {
				return err
			}

			run, err := s.client.TuningRun(ctx, id)
			if err == nil {
				fmt.Fprintf(out, "tuning run %s (%s)\n", run.ID, humanize.Time(run.CreatedAt))
				fmt.Fprintf(out, "robot %s seed %d best param set %s\n", run.Robot, run.Seed, run.BestParamSetID)
				history, err := s.client.FitnessHistory(ctx, tensegrity.FitnessHistoryRequest{RunID: run.ID})
				if err != nil {
					return err
				}
				parts := make([]string, len(history))
				for i, f := range history {
					parts[i] = humanize.FtoaWithDigits(f, 4)
				}
				fmt.Fprintf(out, "history %s\n", strings.Join(parts, " "))
				return nil
			}
			if !errors.Is(err, tensegrity.ErrRunNotFound) {
				return err
			}

			params, record, err := s.client.ParamSet(ctx, id)
			if err != nil {
				if errors.Is(err, tensegrity.ErrParamSetNotFound) {
					return fmt.Errorf("no trial, tuning run or param set with id %s", id)
				}
				return err
			}
			fmt.Fprintf(out, "# param set %s for %s (%s)\n", record.ID, record.Robot, record.Source)
			data, err := cpgconfig.Encode(params, cpgconfig.FormatYAML)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

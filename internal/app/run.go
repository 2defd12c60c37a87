package app

import (
	"context"
	"fmt"

	"github.com/laebshade/pants/internal/address"
	"github.com/laebshade/pants/internal/ctxlog"
	"github.com/laebshade/pants/internal/executor"
	"github.com/laebshade/pants/internal/graph"
	"github.com/laebshade/pants/internal/scheduler"
)

// Run executes the main application logic: load the build graph, plan the
// request, then either print the linearized plans or execute them.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g, err := graph.Load(ctx, a.config.RootPath)
	if err != nil {
		return fmt.Errorf("failed to load build graph: %w", err)
	}
	a.logger.Debug("Build graph loaded.", "targets", len(g.Targets()))

	var addrs []address.Address
	for _, spec := range a.config.Addresses {
		addr, err := address.Parse(spec)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	request := scheduler.NewBuildRequest(a.config.Goals, addrs)
	a.logger.Info("Planning build request.", "request", request.String())

	local, err := scheduler.NewLocalScheduler(ctx, g, a.planners, request)
	if err != nil {
		return fmt.Errorf("scheduling failed: %w", err)
	}
	execGraph, err := local.Schedule()
	if err != nil {
		return fmt.Errorf("scheduling failed: %w", err)
	}

	if a.config.DryRun {
		step := 0
		for key, plan := range execGraph.Walk() {
			step++
			fmt.Fprintf(a.outW, "%3d. %s <- %s\n", step, key, plan)
		}
		a.logger.Info("Dry run complete.", "plans", step)
		return nil
	}

	a.logger.Info("Starting concurrent execution.", "workers", a.config.Workers)
	exec := executor.New(execGraph, a.config.Workers)
	results, err := exec.Run(ctx)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("Execution finished.")

	for _, root := range execGraph.RootPromises() {
		fmt.Fprintf(a.outW, "%s = %v\n", root, results[root])
	}
	return nil
}

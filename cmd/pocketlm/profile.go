package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/logger"
)

func profileCmd() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Report device memory, cores and available backends",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			p := device.NewProfiler(nil, log).Profile()

			w := cmd.Root().Writer
			size := func(n uint64) string { return artifact.FormatSize(int64(n)) }
			fmt.Fprintf(w, "total memory:     %s\n", size(p.TotalMemory))
			fmt.Fprintf(w, "available memory: %s\n", size(p.AvailableMemory))
			fmt.Fprintf(w, "max heap:         %s\n", size(p.MaxHeap))
			fmt.Fprintf(w, "used heap:        %s\n", size(p.UsedHeap))
			fmt.Fprintf(w, "heap headroom:    %s\n", size(p.AvailableHeap))
			fmt.Fprintf(w, "cores:            %d\n", p.Cores)
			fmt.Fprintf(w, "low memory:       %t\n", p.LowMemory)
			fmt.Fprintf(w, "suitable:         %t\n", device.IsSuitable(p))
			fmt.Fprintf(w, "threads:          %d\n", device.RecommendedThreadCount(p.Cores))
			fmt.Fprintf(w, "backends:         %s\n", accel.Available(accel.DefaultDelegates()))
			return nil
		},
	}
}

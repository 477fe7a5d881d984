// internal/app/jobs.go
package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"storefront/internal/pkg/logger"
	notifapp "storefront/internal/service/notification/application"
)

type job func(ctx context.Context, c *Container, args []string) (interface{}, error)

// jobs 是 cron 可以一次性执行的维护任务，与 /internal 路由一一对应
var jobs = map[string]job{
	"deliver": func(ctx context.Context, c *Container, args []string) (interface{}, error) {
		fs := flag.NewFlagSet("deliver", flag.ContinueOnError)
		batch := fs.Int("max", c.Delivery.DefaultBatch(), "max tasks to claim")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		results, err := c.Delivery.DeliverDue(ctx, *batch)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []notifapp.DeliveryResult{}
		}
		return map[string]interface{}{"processed": len(results), "results": results}, nil
	},
	"reconcile": func(ctx context.Context, c *Container, args []string) (interface{}, error) {
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		since := fs.Duration("since", 24*time.Hour, "look back this far for orders")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *since <= 0 {
			return nil, fmt.Errorf("-since must be positive")
		}
		return c.Notifier.ReconcileNotifications(ctx, time.Now().UTC().Add(-*since))
	},
	"sweep": func(ctx context.Context, c *Container, args []string) (interface{}, error) {
		n, err := c.Limiter.Sweep(ctx, c.Limiter.Now())
		if err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": n}, nil
	},
	"backfill": func(ctx context.Context, c *Container, args []string) (interface{}, error) {
		n, err := c.Orders.BackfillTrackingTokens(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"updated": n}, nil
	},
}

// JobNames 返回所有可用任务名，按字母序
func JobNames() []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob 执行一次维护任务，并把结果以 JSON 写到 out
func (c *Container) RunJob(ctx context.Context, name string, args []string, out io.Writer) error {
	run, ok := jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q, expected one of %v", name, JobNames())
	}
	start := time.Now()
	res, err := run(ctx, c, args)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("job", name).Msg("❌ job failed")
		return err
	}
	logger.Ctx(ctx).Info().Str("job", name).Dur("took", time.Since(start)).Msg("✅ job finished")
	return json.NewEncoder(out).Encode(res)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/user"
	studentsyncsvc "github.com/kymoh/elimu/services/studentsync"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	logger   core.Logger
	loc      *time.Location
	usrRepo  user.Repository
	ledger   *batch.Ledger
	notifier *batch.Notifier
	runner   *batch.Runner
	reporter *batch.Reporter
	syncSvc  *studentsyncsvc.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  inactivity [-weeks N] - notify students inactive since the calendar week N weeks ago")
	fmt.Println("  retry -job JOB [-weeks N] - retry ledgered failures of a job (inactivity-email, student-sync)")
	fmt.Println("  sync - push all active students to the sync webhook")
	fmt.Println("  serve - run all jobs on their configured schedules")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	inactivityCmd := flag.NewFlagSet("inactivity", flag.ExitOnError)
	inactivityWeeks := inactivityCmd.Int("weeks", cli.conf.Batch.InactivityWeeks, "Number of calendar weeks back defining the inactivity window.")

	retryCmd := flag.NewFlagSet("retry", flag.ExitOnError)
	retryJob := retryCmd.String("job", "", "The job whose failures to retry.")
	retryWeeks := retryCmd.Int("weeks", cli.conf.Batch.InactivityWeeks, "Weeks parameter used when re-sending inactivity notifications.")

	ctx := context.Background()

	switch args[1] {
	case "inactivity":
		if err := inactivityCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.runInactivity(ctx, *inactivityWeeks)
	case "retry":
		if err := retryCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *retryJob == "" {
			retryCmd.Usage()
			return errHelp
		}
		return cli.runRetry(ctx, *retryJob, *retryWeeks)
	case "sync":
		return cli.runSync(ctx)
	case "serve":
		return cli.serve()
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runInactivity(ctx context.Context, weeks int) error {
	sum, err := cli.notifier.Run(ctx, weeks)
	cli.report(sum)
	return err
}

func (cli *commandLine) runRetry(ctx context.Context, jobName string, weeks int) error {
	kind, err := batch.KindFromString(jobName)
	if err != nil {
		return err
	}
	sum, err := cli.runner.Retry(ctx, cli.job(kind, weeks))
	cli.report(sum)
	return err
}

func (cli *commandLine) runSync(ctx context.Context) error {
	if !cli.syncSvc.Enabled() {
		return errors.New("student sync is not configured")
	}

	isActive := true
	students, err := cli.usrRepo.QueryUsers(ctx, &user.QueryFilter{Roles: user.StudentRoles, IsActive: &isActive})
	if err != nil {
		return fmt.Errorf("querying students: %w", err)
	}
	ids := make([]int, 0, len(students))
	for _, usr := range students {
		ids = append(ids, usr.ID)
	}

	sum, err := cli.runner.Process(ctx, cli.job(batch.KindStudentSync, 0), ids)
	cli.report(sum)
	return err
}

// job pairs a Kind with its per-item operation and the configured attempt cap.
func (cli *commandLine) job(kind batch.Kind, weeks int) batch.Job {
	job := batch.Job{Kind: kind, MaxAttempts: cli.conf.Batch.MaxAttempts}
	switch kind {
	case batch.KindStudentSync:
		job.Op = cli.syncOp()
	default:
		job.Op = cli.notifier.RetryOp(weeks)
	}
	return job
}

func (cli *commandLine) syncOp() batch.ItemFunc {
	return func(ctx context.Context, studentID int) error {
		usr, err := cli.usrRepo.GetUserByID(ctx, studentID)
		if err != nil {
			return err
		}
		return cli.syncSvc.SyncStudent(ctx, usr)
	}
}

func (cli *commandLine) report(sum batch.RunSummary) {
	cli.reporter.Send(sum)
	cli.logger.Info(fmt.Sprintf("%s: %d succeeded, %d failed in %s", sum.Job, sum.Succeeded, sum.Failed, sum.Elapsed))
}

// serve schedules all jobs and blocks until SIGINT/SIGTERM. A job still
// running when its next tick fires is skipped for that tick.
func (cli *commandLine) serve() error {
	c := cron.NewWithLocation(cli.loc)

	var inactivityBusy, retryBusy, syncBusy int32
	schedule := func(spec, name string, busy *int32, fn func(context.Context) error) error {
		return c.AddFunc(spec, func() {
			if !atomic.CompareAndSwapInt32(busy, 0, 1) {
				cli.logger.Warn(name + " still running, skipping this tick")
				return
			}
			defer atomic.StoreInt32(busy, 0)

			if err := fn(context.Background()); err != nil {
				cli.logger.Error(fmt.Sprintf("%s: %v", name, err), err)
			}
		})
	}

	err := schedule(cli.conf.Batch.InactivitySchedule, "inactivity job", &inactivityBusy, func(ctx context.Context) error {
		return cli.runInactivity(ctx, cli.conf.Batch.InactivityWeeks)
	})
	if err != nil {
		return err
	}

	err = schedule(cli.conf.Batch.RetrySchedule, "retry job", &retryBusy, func(ctx context.Context) error {
		if rerr := cli.runRetry(ctx, batch.KindInactivityEmail.String(), cli.conf.Batch.InactivityWeeks); rerr != nil {
			return rerr
		}
		if cli.syncSvc.Enabled() {
			return cli.runRetry(ctx, batch.KindStudentSync.String(), 0)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if cli.syncSvc.Enabled() {
		err = schedule(cli.conf.Batch.SyncSchedule, "student sync job", &syncBusy, func(ctx context.Context) error {
			return cli.runSync(ctx)
		})
		if err != nil {
			return err
		}
	}

	c.Start()
	defer c.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	return nil
}

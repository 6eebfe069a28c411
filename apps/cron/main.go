package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/user"
	chatsvc "github.com/kymoh/elimu/services/chat"
	emailsvc "github.com/kymoh/elimu/services/email"
	logsvc "github.com/kymoh/elimu/services/logger"
	studentsyncsvc "github.com/kymoh/elimu/services/studentsync"
	"github.com/kymoh/elimu/storage/database"
	sqlxrepos "github.com/kymoh/elimu/storage/database/sqlx"
)

// build is set at compile time via -ldflags
var build = "dev"

func main() {
	defer os.Exit(0)

	conf, err := core.NewConfig(build)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "CRON : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	loc, err := time.LoadLocation(conf.Batch.Timezone)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading timezone %q: %v", conf.Batch.Timezone, err), err)
	}

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("Failed to close database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	chatSvc := chatsvc.NewSlackService(conf) // nil when unconfigured
	syncSvc := studentsyncsvc.NewService(conf)

	core.ParseEmailTemplates(conf, logger)

	// set up repos & jobs
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	batchRepo := sqlxrepos.NewBatchRepository(db)
	ledger := batch.NewLedger(batchRepo, logger)

	cli := commandLine{
		conf:     conf,
		logger:   logger,
		loc:      loc,
		usrRepo:  usrRepo,
		ledger:   ledger,
		notifier: batch.NewNotifier(batchRepo, ledger, mailSvc, usrSvc, logger, loc, conf.OperatorAddress()),
		runner:   batch.NewRunner(ledger, logger),
		reporter: batch.NewReporter(mailSvc, chatSvc, logger, conf.OperatorAddress(), conf.AppName),
		syncSvc:  syncSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db, conf); err != nil {
		return nil, err
	}
	return db, nil
}

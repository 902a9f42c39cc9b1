package main

import (
	"log"
	"os"

	"github.com/shibl-edu/shibl/apps/devserver/echoapi"
	"github.com/shibl-edu/shibl/core"
	emailsvc "github.com/shibl-edu/shibl/services/email"
	logsvc "github.com/shibl-edu/shibl/services/logger"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	std := log.New(os.Stdout, conf.AppName+" ", log.LstdFlags|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:     conf.Server.Addr,
			Conf:     conf,
			Store:    echoapi.NewStore(conf),
			EmailSvc: mailSvc,
			Logger:   logger,
		},
	)
	app.Start()
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/photo"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/setting"
	"github.com/pgri-okutimur/anggota/core/user"
	"github.com/pgri-okutimur/anggota/services/email"
	"github.com/pgri-okutimur/anggota/services/logger"
	"github.com/pgri-okutimur/anggota/storage/database"
	sqlxrepos "github.com/pgri-okutimur/anggota/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	// set up services
	mailSvc := emailsvc.NewService(conf, logger)
	core.ParseEmailTemplates(conf, logger)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	regionSvc := region.NewService(sqlxrepos.NewRegionRepository(db), conf.MasterDataCacheTTL)
	memberSvc := member.NewService(member.Deps{
		Repo:       sqlxrepos.NewMemberRepository(db),
		UserSvc:    usrSvc,
		RegionSvc:  regionSvc,
		SettingSvc: setting.NewService(sqlxrepos.NewSettingRepository(db), conf),
		Photos:     photo.NewFileStore(conf),
		Versions:   photo.NewVersionCache(),
		MailSvc:    mailSvc,
		Conf:       conf,
	})

	// start CLI
	cli := commandLine{
		db:        db.DB,
		out:       os.Stdout,
		prompt:    surveyPrompter{},
		logger:    logger,
		usrRepo:   usrRepo,
		memberSvc: memberSvc,
		regionSvc: regionSvc,
		statusCheck: func(ctx context.Context) error {
			return database.StatusCheck(ctx, db)
		},
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/config"
	"github.com/mediagate/streamgate/internal/bot"
	"github.com/mediagate/streamgate/internal/engine"
	"github.com/mediagate/streamgate/internal/logging"
	"github.com/mediagate/streamgate/internal/mtproto"
	"github.com/mediagate/streamgate/internal/routes"
	"github.com/mediagate/streamgate/internal/session"
)

const versionString = "dev"

var runCmd = &cobra.Command{
	Use:                "run",
	Short:              "Run the gateway with the given configuration.",
	DisableSuggestions: false,
	Run:                runApp,
}

var startTime time.Time = time.Now()

func runApp(cmd *cobra.Command, args []string) {
	log := logging.New(false, "info")
	mainLogger := log.Named("Main")
	mainLogger.Info("Starting server")
	config.Load(log, cmd)

	log = logging.New(config.ValueOf.Dev, config.ValueOf.LogLevel)
	mainLogger = log.Named("Main")

	mainBot, err := bot.StartClient(log)
	if err != nil {
		mainLogger.Panic("Failed to start main bot", zap.Error(err))
	}

	workers, err := bot.StartWorkers(log)
	if err != nil {
		mainLogger.Panic("Failed to start workers", zap.Error(err))
		return
	}
	workers.AddDefaultClient(mainBot, mainBot.Self)

	eng, err := wireEngine(log, workers)
	if err != nil {
		mainLogger.Panic("Failed to wire streaming engine", zap.Error(err))
	}
	defer eng.Close()

	router := getRouter(log, eng)

	mainLogger.Info("Server started", zap.Int("port", config.ValueOf.Port))
	mainLogger.Info("Media streaming gateway", zap.String("version", versionString))
	mainLogger.Sugar().Infof("Main server is running at %s", config.ValueOf.Host)

	if err := router.Run(fmt.Sprintf(":%d", config.ValueOf.Port)); err != nil {
		mainLogger.Sugar().Fatalln(err)
	}
}

// wireEngine builds one internal/session.Pool per worker — the home
// client's connection standing in as that pool's home DC transport, a
// mtproto.Dialer/mtproto.Authorizer handling cross-DC dials — and
// assembles the resulting engine.Engine around the default worker's
// MsgStore (spec.md §9 "one MsgStore designated at startup").
func wireEngine(log *zap.Logger, workers *bot.BotWorkers) (*engine.Engine, error) {
	if len(workers.Bots) == 0 {
		return nil, fmt.Errorf("no workers started")
	}

	dialer := mtproto.NewDialer(int(config.ValueOf.ApiID), config.ValueOf.ApiHash, log)

	engineWorkers := make([]*engine.Worker, len(workers.Bots))
	for i, w := range workers.Bots {
		home := mtproto.NewHomeTransport(w.Client)
		auth := mtproto.NewAuthorizer(w.Client)
		pool := session.NewPool(
			config.ValueOf.HomeDC,
			home,
			dialer,
			auth,
			config.ValueOf.AuthRetryLimit,
			config.ValueOf.AuthSettleDelay(),
			log,
		)
		w.Pool = pool
		w.HomeDC = config.ValueOf.HomeDC
		engineWorkers[i] = &engine.Worker{Pool: pool, HomeDC: config.ValueOf.HomeDC}
	}

	defaultWorker := bot.GetDefaultWorker()
	store := mtproto.NewStore(defaultWorker.Client, log)

	return engine.New(
		store,
		config.ValueOf.StoreChannelID,
		config.ValueOf.ChunkSize(),
		config.ValueOf.CleanInterval(),
		engineWorkers,
		log,
	), nil
}

func getRouter(log *zap.Logger, eng *engine.Engine) *gin.Engine {
	if config.ValueOf.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var router *gin.Engine
	if config.ValueOf.LogLevel == "error" || config.ValueOf.LogLevel == "warn" {
		router = gin.New()
		router.Use(gin.Recovery())
		router.Use(gin.ErrorLogger())
	} else {
		router = gin.Default()
		router.Use(gin.ErrorLogger())
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message": "Server is running.",
			"ok":      true,
			"uptime":  time.Since(startTime).String(),
			"version": versionString,
		})
	})
	routes.Load(log, router, eng)
	return router
}

package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/moderation"
	"github.com/pawsly/pawsly-chat/permissions"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/presence"
	"github.com/pawsly/pawsly-chat/ratelimit"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	bootstrap(globalConfig, persister)

	resolver := permissions.NewResolver(persister, globalConfig)
	moderationService := moderation.NewService(persister, resolver)
	tracker := presence.NewTracker(persister, moderationService, globalConfig.FreshnessWindow())
	moderationService.SetOfflineForcer(tracker)
	limiter := ratelimit.NewLimiter(persister, globalConfig)

	app := &application{
		cfg:        globalConfig,
		persister:  persister,
		resolver:   resolver,
		moderation: moderationService,
		presence:   tracker,
		limiter:    limiter,
	}

	router := mux.NewRouter()
	router.HandleFunc("/moderation/action", app.issueActionHandler).Methods(http.MethodPost)
	router.HandleFunc("/moderation/action", app.revokeActionHandler).Methods(http.MethodDelete)
	router.HandleFunc("/moderation/action", app.queryActionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/moderation/log", app.moderationLogHandler).Methods(http.MethodGet)
	router.HandleFunc("/presence", app.presenceHeartbeatHandler).Methods(http.MethodPost)
	router.HandleFunc("/presence", app.listOnlineHandler).Methods(http.MethodGet)
	router.HandleFunc("/messages", app.sendMessageHandler).Methods(http.MethodPost)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// bootstrap makes sure the default room and the configured admin user exist,
// so a fresh database is usable right away.
func bootstrap(cfg *config.Config, persister persistence.Persister) {
	rooms, err := persister.GetRooms()
	if err != nil {
		panic(err)
	}
	if len(rooms) == 0 {
		room := types.Room{Slug: "default", Name: "Default"}
		if err := persister.StoreRoom(room); err != nil {
			panic(err)
		}
		globals.AppLogger.Info("created default room")
	}
	if cfg.AdminUser != "" {
		admin := types.User{Id: cfg.AdminUser}
		err := persister.GetUser(&admin)
		if persistence.IsNotFound(err) {
			admin.Nick = cfg.AdminUser
			admin.SiteAdmin = true
			if err := persister.StoreUser(admin); err != nil {
				panic(err)
			}
			globals.AppLogger.Info("created admin user", "id", cfg.AdminUser)
		} else if err != nil {
			panic(err)
		}
	}
}

package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"choreboard/api"
	"choreboard/domain"
	"choreboard/engine"
	"choreboard/feed"
	"choreboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	publisher := feed.NewPublisher(rc, logger)

	var tasks storage.Gateway[domain.Task]
	var members storage.Gateway[domain.Member]
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		// Local mode keeps the whole board in memory. Meant for
		// development and demos, not production.
		logger.Warn("no storage connection string, using in-memory store")
		tasks = storage.NewMemory[domain.Task](domain.EntityTasks, publisher)
		members = storage.NewMemory[domain.Member](domain.EntityMembers, publisher)
	} else {
		tasksTableName := os.Getenv("TASKS_TABLE")
		membersTableName := os.Getenv("MEMBERS_TABLE")
		if tasksTableName == "" || membersTableName == "" {
			log.Fatal("missing storage config")
		}
		store, err := storage.New(storage.Config{
			ConnectionString: connStr,
			TasksTable:       tasksTableName,
			MembersTable:     membersTableName,
		}, publisher)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		tasks = store.Tasks()
		members = store.Members()
	}

	originTTL := 5 * time.Second
	if v := os.Getenv("ORIGIN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid ORIGIN_TTL: %v", err)
		}
		originTTL = d
	}
	snapshotTTL := 24 * time.Hour
	if v := os.Getenv("SNAPSHOT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SNAPSHOT_TTL: %v", err)
		}
		snapshotTTL = d
	}

	feedCfg := feed.Config{Client: rc, Logger: logger}
	manager := engine.NewManager(engine.ManagerConfig{
		Tasks:          tasks,
		Members:        members,
		TaskFeed:       feed.New[domain.Task](feedCfg, domain.EntityTasks),
		MemberFeed:     feed.New[domain.Member](feedCfg, domain.EntityMembers),
		Logger:         logger,
		OriginTTL:      originTTL,
		TaskSnapshot:   storage.NewSnapshot[domain.Task](domain.EntityTasks, rc, snapshotTTL),
		MemberSnapshot: storage.NewSnapshot[domain.Member](domain.EntityMembers, rc, snapshotTTL),
	})
	defer manager.Close()

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		dedupeTTL = d
	}
	deduper := api.NewRedisDeduper(rc, dedupeTTL)

	shareSecret := []byte(os.Getenv("SHARE_TOKEN_SECRET"))
	if len(shareSecret) == 0 {
		shareSecret = nil
	}
	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "", shareSecret)
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		authDomain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || authDomain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/", shareSecret)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("choreboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, manager, auth, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

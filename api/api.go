package api

import (
	"net"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/theracd/console"
	"golang.org/x/net/netutil"
)

type Config struct {
	Console *console.Console
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// MaxConnections caps concurrent connections, zero means no limit.
	MaxConnections int
	Log            Logger
}

type Api struct {
	console        *console.Console
	router         *mux.Router
	maxConnections int
	log            Logger
}

func New(config *Config) *Api {
	api := &Api{
		console:        config.Console,
		router:         mux.NewRouter(),
		maxConnections: config.MaxConnections,
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Use(api.loggingMiddleware)

	r := api.router.PathPrefix("/api").Subrouter()
	r.Handle("/status", api.handleGetStatus()).Methods(http.MethodGet)
	r.Handle("/setup", api.handlePostSetup()).Methods(http.MethodPost)
	r.Handle("/mode", api.handlePostMode()).Methods(http.MethodPost)
	r.Handle("/edit", api.handlePostEdit()).Methods(http.MethodPost)
	r.Handle("/fire", api.handlePostFire()).Methods(http.MethodPost)
	r.Handle("/reset", api.handleReset()).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/emergency_stop", api.handlePostEmergencyStop()).Methods(http.MethodPost)
	r.Handle("/events", api.handleGetEvents()).Methods(http.MethodGet)

	if config.Metrics != nil {
		api.router.Handle("/metrics", config.Metrics).Methods(http.MethodGet)
	}

	return api
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	if a.maxConnections > 0 {
		l = netutil.LimitListener(l, a.maxConnections)
	}

	// a closed listener is a regular shutdown
	err := http.Serve(l, a.router)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}

func (a *Api) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Debugf("%v %v", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

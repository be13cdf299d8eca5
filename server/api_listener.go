package chserver

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/gorilla/mux"
	"github.com/jpillora/requestlog"
	"golang.org/x/sync/errgroup"

	"github.com/openrport/rguard/server/bearer"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/chconfig"
	chshare "github.com/openrport/rguard/share"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
	"github.com/openrport/rguard/share/pubsub"
	"github.com/openrport/rguard/share/ws"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Bridge is the part of the orchestration bridge the API exposes.
type Bridge interface {
	IsLive() bool
	StartLive()
	StopLive()
	LoadRecentEvents() error
	Scan(scanType models.ScanType, args bridge.ScanArgs) error
	IsScanning(scanType models.ScanType) bool
	RecentEvents(ctx context.Context, max int) ([]models.EventItem, error)
	RecentScans(ctx context.Context, max int) ([]models.ScanRecord, error)
	Subscribe() *pubsub.Subscription
	Unsubscribe(s *pubsub.Subscription)
}

type APIListener struct {
	*logger.Logger

	bridge            Bridge
	config            chconfig.APIConfig
	auth              *bearer.StaticToken
	router            *mux.Router
	httpServer        *chshare.HTTPServer
	requestLogOptions *requestlog.Options
	accessLogFile     io.WriteCloser
	sockets           *ws.WebSocketCache
}

func NewAPIListener(b Bridge, config *chconfig.Config, l *logger.Logger) (*APIListener, error) {
	a := &APIListener{
		Logger:            l,
		bridge:            b,
		config:            config.API,
		auth:              bearer.NewStaticToken(config.API.AuthToken),
		requestLogOptions: config.InitRequestLogOptions(),
		sockets:           ws.NewWebSocketCache(),
		httpServer: chshare.NewHTTPServer(
			int(config.API.MaxRequestBytes),
			l,
			chshare.WithTLS(config.API.CertFile, config.API.KeyFile, nil),
		),
	}

	if config.API.AccessLogFile != "" {
		accessLogFile, err := os.OpenFile(config.API.AccessLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		a.accessLogFile = accessLogFile
	}

	SetAPIResponsesErrorLog(l.Fork("api-error-response"))
	a.initRouter()

	return a, nil
}

func (al *APIListener) Start(addr string) error {
	al.Infof("API Listening on %s...", addr)

	return al.httpServer.GoListenAndServe(addr, al.Handler())
}

// Addr returns the listening address once started.
func (al *APIListener) Addr() net.Addr {
	return al.httpServer.Addr()
}

func (al *APIListener) Wait() error {
	return al.httpServer.Wait()
}

func (al *APIListener) Close() error {
	g := &errgroup.Group{}
	g.Go(al.httpServer.Close)
	g.Go(al.sockets.CloseConnections)
	if al.accessLogFile != nil {
		g.Go(al.accessLogFile.Close)
	}
	return g.Wait()
}

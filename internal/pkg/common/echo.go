package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

const bodyLimit = "64K"

type EchoService struct {
	echo   *echo.Echo
	port   int
	logger *zap.Logger
}

func NewEchoService(i do.Injector) (*EchoService, error) {
	port := do.MustInvokeNamed[int](i, "port")
	loggerService := do.MustInvoke[*LoggerService](i)

	logger := loggerService.Logger.Named("http")

	return &EchoService{
		echo:   NewEcho(logger),
		port:   port,
		logger: logger,
	}, nil
}

// NewEcho builds the router every service registers on. Requests are logged
// through zap with the request id echo assigns.
func NewEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}

			switch {
			case v.Status >= http.StatusInternalServerError:
				logger.Error("request failed", append(fields, zap.Error(v.Error))...)
			case v.Error != nil:
				logger.Info("request rejected", append(fields, zap.Error(v.Error))...)
			default:
				logger.Info("request", fields...)
			}

			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))

	return e
}

func (s *EchoService) Register(c func(e *echo.Echo)) {
	c(s.echo)
}

func (s *EchoService) Start() error {
	s.logger.Info("listening", zap.Int("port", s.port))

	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *EchoService) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}

	return nil
}

package loggingmw

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type Config struct {
	Logger *slog.Logger
	// VisitorCookie, when set, adds the visitor id already known to the
	// browser to every request line.
	VisitorCookie string
	// QuietPrefixes are logged at debug on success (health checks).
	QuietPrefixes []string
}

// RequestLogger stores a request-scoped logger in the context and writes one
// line per request once the error handler has settled the status.
func RequestLogger(cfg Config) echo.MiddlewareFunc {
	base := cfg.Logger
	if base == nil {
		base = logging.Discard()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Response().Header().Get(echo.HeaderXRequestID)
			}

			l := base.With(
				"method", req.Method,
				"path", c.Path(),
				"remote_ip", c.RealIP(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
				c.Response().Header().Set(echo.HeaderXRequestID, rid)
			}
			if cfg.VisitorCookie != "" {
				if ck, err := c.Cookie(cfg.VisitorCookie); err == nil && ck.Value != "" {
					l = l.With("visitor", ck.Value)
				}
			}
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			attrs := []any{"status", status, "duration_ms", time.Since(start).Milliseconds()}

			switch {
			case status >= 500:
				l.Error("request_completed", append(attrs, "error", errStr(err))...)
			case status >= 400:
				l.Warn("request_completed", append(attrs, "error", errStr(err))...)
			case quiet(req.URL.Path, cfg.QuietPrefixes):
				l.Debug("request_completed", attrs...)
			default:
				l.Info("request_completed", append(attrs, "bytes", c.Response().Size)...)
			}
			return nil
		}
	}
}

func quiet(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

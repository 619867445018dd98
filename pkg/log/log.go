package log

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stdout

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "json":
		l.Formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	default:
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
			DisableColors:   false,
			ForceColors:     true,
		}
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return l
}

// Logger exposes the underlying logger, mainly so tests can redirect output.
func Logger() *logrus.Logger {
	return logger
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v, ok := c.Locals("request_id").(string); ok && v != "" {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Instance scopes log lines to one tenant session.
func Instance(name string) *logrus.Entry {
	return logger.WithField("instance", name)
}

// SysErr logs a background failure that has no request attached.
func SysErr(component string, err error) {
	if err == nil {
		return
	}
	logger.WithField("component", component).WithError(err).Error(component + " failed")
}

// MaskJID hides the last digits of a phone based address.
func MaskJID(jid string) string {
	user, server, found := strings.Cut(jid, "@")
	if len(user) < 4 {
		return jid
	}
	masked := user[0:len(user)-4] + "xxxx"
	if found {
		return masked + "@" + server
	}
	return masked
}

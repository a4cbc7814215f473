package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logLevelFromEnv())
	logg.SetOutput(os.Stdout)
}

// logLevelFromEnv reads LOG_LEVEL; anything unparseable falls back to warn so clamped
// negative aggregates still reach the log.
func logLevelFromEnv() logrus.Level {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return logrus.WarnLevel
	}
	lvl, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.WarnLevel
	}
	return lvl
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}

func LogWarn(logger *logrus.Logger, moduleName string, funcName string, context string, data any) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Warn(context)
}

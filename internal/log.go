package internal

import (
	"fmt"
	"log"
	"os"
)

// Logging is the minimal logger used across go-nodup. Any *log.Logger
// satisfies it.
type Logging interface {
	Printf(format string, v ...interface{})
}

type logger struct {
	log *log.Logger
}

func (l *logger) Printf(format string, v ...interface{}) {
	_ = l.log.Output(2, fmt.Sprintf(format, v...))
}

var l Logging = newDefaultLogger()

func newDefaultLogger() Logging {
	return &logger{
		log: log.New(os.Stdout, "go-nodup: ", log.LstdFlags|log.Lshortfile),
	}
}

// SetLogger replaces the package logger, nil restores the default one.
func SetLogger(logger Logging) {
	if logger == nil {
		logger = newDefaultLogger()
	}
	l = logger
}

func GetLogger() Logging {
	return l
}

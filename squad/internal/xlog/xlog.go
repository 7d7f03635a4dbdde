// Package xlog configures the process-wide zerolog console logger used by
// the squad package for construction diagnostics, fatal-termination
// messages, and optional wait-chain tracing.
package xlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetConsole(false)
}

var colourDisabled bool

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan
	colorWhite

	colorBold = 1
)

func colorize(s interface{}, c int) string {
	if colourDisabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// SetLevel adjusts the global log level: 0 = info, 1 = debug, otherwise trace.
func SetLevel(level int) {
	switch level {
	case 0:
		log.Logger = log.With().Logger().Level(zerolog.InfoLevel)
	case 1:
		log.Logger = log.With().Logger().Level(zerolog.DebugLevel)
	default:
		log.Logger = log.With().Logger().Level(zerolog.TraceLevel)
	}
}

// SetConsole installs a colour-aware console writer, matching the
// formatting conventions used across the rest of the codebase.
func SetConsole(noColour bool) {
	colourDisabled = noColour
	zerolog.CallerMarshalFunc = callerMarshal

	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly, NoColor: noColour}
	cw.FormatCaller = formatCaller
	cw.FormatLevel = formatLevel
	cw.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.CallerFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
	log.Logger = log.With().Caller().Logger().Output(cw)
}

func callerMarshal(pc uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = fmt.Sprintf("%15s.%-4s", short, strconv.Itoa(line))
	if len(file) > 20 {
		file = ".." + file[len(file)-18:]
	}
	return colorize(file, colorBlack)
}

func formatCaller(i any) string {
	var c string
	if cc, ok := i.(string); ok {
		c = cc
	}
	if len(c) > 0 {
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}
		c = colorize(c, colorBold)
	}
	return c
}

func formatLevel(i any) string {
	var l string
	if ll, ok := i.(string); ok {
		switch ll {
		case zerolog.LevelTraceValue:
			l = colorize("| TRACE |", colorMagenta)
		case zerolog.LevelDebugValue:
			l = colorize("| DEBUG |", colorYellow)
		case zerolog.LevelInfoValue:
			l = colorize("| INFO  |", colorGreen)
		case zerolog.LevelWarnValue:
			l = colorize("| WARN  |", colorRed)
		case zerolog.LevelErrorValue:
			l = colorize(colorize("| ERROR |", colorRed), colorBold)
		case zerolog.LevelFatalValue:
			l = colorize(colorize("| FATAL |", colorRed), colorBold)
		case zerolog.LevelPanicValue:
			l = colorize(colorize("| PANIC |", colorRed), colorBold)
		default:
			l = colorize(ll, colorBold)
		}
	} else if i == nil {
		l = colorize("| ??? |", colorBold)
	} else {
		l = strings.ToUpper(fmt.Sprintf("| %5s |", i))
	}
	return l
}

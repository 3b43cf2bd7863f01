package logger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levelStrings = map[string]zapcore.Level{
	"debug": zap.DebugLevel,
	"info":  zap.InfoLevel,
	"error": zap.ErrorLevel,
}

// LevelFlagValue is a pflag.Value that applies a log level as soon as it is
// parsed.
type LevelFlagValue struct {
	onLevel func(zapcore.Level)
	value   string
}

var _ pflag.Value = (*LevelFlagValue)(nil)

func NewLevelFlagValue(onLevel func(zapcore.Level)) LevelFlagValue {
	return LevelFlagValue{onLevel: onLevel}
}

// StringToLevel parses a level name or a positive logr verbosity. Verbosity n
// maps to zap level -n, which logr.Logger.V(n) logs at.
func StringToLevel(value string) (zapcore.Level, error) {
	if level, ok := levelStrings[strings.ToLower(value)]; ok {
		return level, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 || n > 127 {
		return zapcore.InvalidLevel, fmt.Errorf("invalid log level %q", value)
	}
	return zapcore.Level(int8(-n)), nil
}

func (v *LevelFlagValue) Set(s string) error {
	level, err := StringToLevel(s)
	if err != nil {
		return err
	}
	v.onLevel(level)
	v.value = s
	return nil
}

func (v *LevelFlagValue) String() string {
	return v.value
}

func (*LevelFlagValue) Type() string {
	return "level"
}

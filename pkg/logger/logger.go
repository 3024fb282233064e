package logger

import (
	"os"
	"path/filepath"
	"strings"

	"mindmate/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 每条日志都带上服务名
const serviceName = "mindmate"

// log 包级日志，跳过一层调用栈以记录真正的调用位置
// 初始化前为空日志，测试和工具无需初始化
var log = zap.NewNop()

// InitLogger 按配置构建日志并设为全局实例
// 文件输出为JSON并按大小轮转；Console 为 true 时同时输出到标准输出
func InitLogger(cfg config.LogConfig) *zap.Logger {
	level := parseLevel(cfg.Level)

	cores := []zapcore.Core{fileCore(cfg, level)}
	if cfg.Console {
		cores = append(cores, consoleCore(level))
	}

	l := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", serviceName)),
	)
	SetLogger(l)
	zap.ReplaceGlobals(l)
	return l
}

// SetLogger 替换包级日志（测试中注入 observer），nil 恢复为空日志
func SetLogger(l *zap.Logger) {
	if l == nil {
		log = zap.NewNop()
		return
	}
	log = l.WithOptions(zap.AddCallerSkip(1))
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	return enc
}

// fileCore 轮转文件输出；目录无法创建时退回标准错误
func fileCore(cfg config.LogConfig, level zapcore.LevelEnabler) zapcore.Core {
	var sink zapcore.WriteSyncer
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // 天
			Compress:   cfg.Compress,
		})
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, level)
}

func consoleCore(level zapcore.LevelEnabler) zapcore.Core {
	enc := encoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stdout), level)
}

// parseLevel 未知级别按 info 处理
func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { log.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { log.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }

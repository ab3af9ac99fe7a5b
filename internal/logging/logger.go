package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RoomIDKey        contextKey = "room_id"
	ConferenceIDKey  contextKey = "conference_id"
	EndpointIDKey    contextKey = "endpoint_id"
	BridgeJIDKey     contextKey = "bridge_jid"
)

// Initialize sets up the global logger based on the environment.
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// GetLogger returns the global logger instance.
func GetLogger() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, appendContextFields(ctx, fields)...)
}

func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}

	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if rid, ok := ctx.Value(RoomIDKey).(string); ok {
		fields = append(fields, zap.String("room_id", rid))
	}
	if cid, ok := ctx.Value(ConferenceIDKey).(string); ok {
		fields = append(fields, zap.String("conference_id", cid))
	}
	if eid, ok := ctx.Value(EndpointIDKey).(string); ok {
		fields = append(fields, zap.String("endpoint_id", eid))
	}
	if bj, ok := ctx.Value(BridgeJIDKey).(string); ok {
		fields = append(fields, zap.String("bridge_jid", bj))
	}

	fields = append(fields, zap.String("service", "jicofo"))

	return fields
}

// WithRoomID returns a derived context carrying the room id for log enrichment.
func WithRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, RoomIDKey, roomID)
}

// WithConferenceID returns a derived context carrying the conference id for log enrichment.
func WithConferenceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConferenceIDKey, id)
}

// WithEndpointID returns a derived context carrying the endpoint id for log enrichment.
func WithEndpointID(ctx context.Context, endpointID string) context.Context {
	return context.WithValue(ctx, EndpointIDKey, endpointID)
}

// WithBridgeJID returns a derived context carrying the bridge jid for log enrichment.
func WithBridgeJID(ctx context.Context, jid string) context.Context {
	return context.WithValue(ctx, BridgeJIDKey, jid)
}

package qspi

import (
	"context"
	"log/slog"
)

// levelTrace is below debug and logs every instruction and frame boundary.
const levelTrace slog.Level = slog.LevelDebug - 1

func (d *Decoder) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Decoder) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Decoder) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Decoder) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Decoder) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Decoder) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil || !d.logger.Enabled(context.Background(), level) {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

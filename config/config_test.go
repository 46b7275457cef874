package config

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(log.New(&buf, "", 0), logger.Warn)
	query := func() (string, int64) { return "SELECT * FROM users WHERE telegram_id = 7", 0 }

	l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), query, errors.New("connection reset"))
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), "telegram_id = 7")
}

package testutil

import (
	"io"

	"github.com/dtroode/expensekeeper-client/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0)
}

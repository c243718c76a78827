package errprocess

import (
	"errors"
	"fmt"

	"chat_relay_service/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap logs err with context and returns it wrapped, nil stays nil
func Wrap(err error, context string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(context, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", context, err)
}

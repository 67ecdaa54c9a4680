package errprocess

import (
	"errors"
	"fmt"

	"video_processor_worker/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string, fields ...zap.Field) error {
	logger.Log.Error(errMsg, fields...)
	return errors.New(errMsg)
}

// Wrap log errMsg with cause and return an error wrapping err
func Wrap(err error, errMsg string, fields ...zap.Field) error {
	logger.Log.Error(errMsg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s : %w", errMsg, err)
}
